package property

import (
	"sync/atomic"
)

// View is a read-only window onto a Store. The slices returned by the raw
// accessors alias the store's buffer and must not be written to.
type View struct {
	s *Store
}

func (v View) Len() int { return v.s.count }
func (v View) Components() int { return v.s.components }
func (v View) DataType() DataType { return v.s.dataType }

// Float returns component c of element i converted to float64.
func (v View) Float(i, c int) float64 {
	j := i*v.s.components + c
	switch v.s.dataType {
	case Int: return float64(v.s.i32[j])
	case Int64: return float64(v.s.i64[j])
	default: return v.s.f64[j]
	}
}

// Int returns component c of element i converted to int64. Floating point
// values are truncated.
func (v View) Int(i, c int) int64 {
	j := i*v.s.components + c
	switch v.s.dataType {
	case Int: return int64(v.s.i32[j])
	case Int64: return v.s.i64[j]
	default: return int64(v.s.f64[j])
	}
}

// Vec3 returns the first three components of element i. Properties with
// fewer components are padded with zeros.
func (v View) Vec3(i int) [3]float64 {
	out := [3]float64{ }
	n := v.s.components
	if n > 3 { n = 3 }
	for c := 0; c < n; c++ { out[c] = v.Float(i, c) }
	return out
}

// Vec3s copies the whole property into a new [][3]float64 array.
func (v View) Vec3s() [][3]float64 {
	out := make([][3]float64, v.s.count)
	for i := range out { out[i] = v.Vec3(i) }
	return out
}

// Float64s returns the raw buffer of a Float property and nil otherwise.
// Components of an element are stored contiguously.
func (v View) Float64s() []float64 { return v.s.f64 }

// Int32s returns the raw buffer of an Int property and nil otherwise.
func (v View) Int32s() []int32 { return v.s.i32 }

// Int64s returns the raw buffer of an Int64 property and nil otherwise.
func (v View) Int64s() []int64 { return v.s.i64 }

// Mutation is an exclusive, writable handle to a Store. It is obtained from
// Store.Mutate or Store.Modify and must be released exactly once.
type Mutation struct {
	View
	released int32
}

// SetFloat sets component c of element i, converting x to the store's type.
func (m *Mutation) SetFloat(i, c int, x float64) {
	j := i*m.s.components + c
	switch m.s.dataType {
	case Int: m.s.i32[j] = int32(x)
	case Int64: m.s.i64[j] = int64(x)
	default: m.s.f64[j] = x
	}
}

// SetInt sets component c of element i, converting x to the store's type.
func (m *Mutation) SetInt(i, c int, x int64) {
	j := i*m.s.components + c
	switch m.s.dataType {
	case Int: m.s.i32[j] = int32(x)
	case Int64: m.s.i64[j] = x
	default: m.s.f64[j] = float64(x)
	}
}

// SetVec3 sets the first three components of element i.
func (m *Mutation) SetVec3(i int, x [3]float64) {
	n := m.s.components
	if n > 3 { n = 3 }
	for c := 0; c < n; c++ { m.SetFloat(i, c, x[c]) }
}

// SetVec3s copies x into the property. len(x) must equal Len().
func (m *Mutation) SetVec3s(x [][3]float64) {
	for i := range x { m.SetVec3(i, x[i]) }
}

// Fill sets every component of every element to x.
func (m *Mutation) Fill(x float64) {
	switch m.s.dataType {
	case Int:
		for j := range m.s.i32 { m.s.i32[j] = int32(x) }
	case Int64:
		for j := range m.s.i64 { m.s.i64[j] = int64(x) }
	default:
		for j := range m.s.f64 { m.s.f64[j] = x }
	}
}

// Float64s returns the writable raw buffer of a Float property.
func (m *Mutation) Float64s() []float64 { return m.s.f64 }

// Int32s returns the writable raw buffer of an Int property.
func (m *Mutation) Int32s() []int32 { return m.s.i32 }

// Int64s returns the writable raw buffer of an Int64 property.
func (m *Mutation) Int64s() []int64 { return m.s.i64 }

// Release ends the mutation and marks the store as changed. Calling Release
// more than once has no further effect.
func (m *Mutation) Release() {
	if !atomic.CompareAndSwapInt32(&m.released, 0, 1) { return }
	m.s.Touch()
	atomic.StoreInt32(&m.s.mutating, 0)
}
