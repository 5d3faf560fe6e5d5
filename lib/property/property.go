/*package property implements property stores: named, typed, resizable arrays
holding one per-element attribute (position, type, velocity, ...) of a
particle or bond set.

A store is only ever written through a Mutation. Mutations are refused while
the store is shared by more than one collection, and releasing a Mutation
always gives the store a new revision, which is how the pipeline learns that
cached results computed from the old data are stale. Code which writes to a
buffer some other way must call MarkChanged itself.
*/
package property

import (
	"fmt"
	"sync/atomic"

	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
)

// Store is a single per-element property.
type Store struct {
	object.Base

	kind Kind
	class Class
	name string
	dataType DataType
	components int
	componentNames []string

	count int
	i32 []int32
	i64 []int64
	f64 []float64

	mutating int32
}

// Type assertion
var _ object.Object = &Store{ }

// New creates a zero-initialized standard property with count elements.
func New(kind Kind, count int) (*Store, error) {
	if !kind.IsStandard() {
		return nil, fmt.Errorf("%s is not a standard property kind. Use " +
			"NewUser for user-defined properties.", kind)
	} else if count < 0 {
		return nil, fmt.Errorf("Cannot create property '%s' with %d " +
			"elements.", kind, count)
	}

	s := &Store{
		kind: kind, class: kind.Class(), name: kind.String(),
		dataType: kind.DataType(), components: kind.Components(),
		componentNames: kind.ComponentNames(),
	}
	s.Init()
	s.allocate(count)
	return s, nil
}

// NewUser creates a zero-initialized user-defined property.
func NewUser(
	name string, class Class, dataType DataType, count, components int,
) (*Store, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("User properties must have a name.")
	case components < 1:
		return nil, fmt.Errorf("Property '%s' was given %d components, but " +
			"must have at least one.", name, components)
	case count < 0:
		return nil, fmt.Errorf("Cannot create property '%s' with %d " +
			"elements.", name, count)
	case dataType != Int && dataType != Int64 && dataType != Float:
		return nil, fmt.Errorf("Property '%s' has unrecognized data type %s.",
			name, dataType)
	case class != ParticleClass && class != BondClass:
		return nil, fmt.Errorf("Property '%s' has unrecognized class %s.",
			name, class)
	}

	s := &Store{
		kind: UserKind, class: class, name: name,
		dataType: dataType, components: components,
	}
	s.Init()
	s.allocate(count)
	return s, nil
}

// allocate replaces the buffer with a zeroed one holding n elements.
func (s *Store) allocate(n int) {
	s.count = n
	switch s.dataType {
	case Int: s.i32 = make([]int32, n*s.components)
	case Int64: s.i64 = make([]int64, n*s.components)
	case Float: s.f64 = make([]float64, n*s.components)
	}
}

func (s *Store) Kind() Kind { return s.kind }
func (s *Store) Class() Class { return s.class }
func (s *Store) Name() string { return s.name }
func (s *Store) DataType() DataType { return s.dataType }
func (s *Store) Components() int { return s.components }
func (s *Store) Len() int { return s.count }

// ComponentNames returns the names of the vector components, or nil for
// scalar and unnamed components.
func (s *Store) ComponentNames() []string {
	if s.componentNames == nil { return nil }
	return append([]string{ }, s.componentNames...)
}

// Read returns a read-only view of the current contents.
func (s *Store) Read() View { return View{ s } }

// Mutate returns a writable handle to the store. The store must not be
// shared: if more than one collection refers to it, the caller has to obtain
// a private copy first (collection.CopyIfNeeded). Release must be called on
// the handle when writing is finished; it marks the store as changed.
func (s *Store) Mutate() (*Mutation, error) {
	if s.Shared() {
		return nil, fmt.Errorf("property '%s' has %d referrers: %w",
			s.name, s.References(), g_error.ErrSharedMutation)
	}
	if !atomic.CompareAndSwapInt32(&s.mutating, 0, 1) {
		return nil, fmt.Errorf("property '%s': %w", s.name,
			g_error.ErrMutationInProgress)
	}
	return &Mutation{ View: View{ s } }, nil
}

// Modify runs f with a Mutation of s and releases it afterwards, whether or
// not f succeeds. The store's revision is always bumped once f has run.
func (s *Store) Modify(f func(m *Mutation) error) error {
	m, err := s.Mutate()
	if err != nil { return err }
	defer m.Release()
	return f(m)
}

// MarkChanged gives the store a new revision. Code that writes to the buffer
// without going through a Mutation must call this, or downstream caches will
// keep serving results computed from the old data.
func (s *Store) MarkChanged() { s.Touch() }

// Resize changes the number of elements. The first min(old, n) elements are
// preserved and new elements are zero.
func (s *Store) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("Cannot resize property '%s' to %d elements.",
			s.name, n)
	}
	return s.Modify(func(m *Mutation) error {
		m.s.resize(n)
		return nil
	})
}

func (s *Store) resize(n int) {
	m := n*s.components
	switch s.dataType {
	case Int: s.i32 = resizeSlice(s.i32, m)
	case Int64: s.i64 = resizeSlice(s.i64, m)
	case Float: s.f64 = resizeSlice(s.f64, m)
	}
	s.count = n
}

// resizeSlice resizes x to length n, zeroing any new elements.
func resizeSlice[T any](x []T, n int) []T {
	if n <= len(x) { return x[:n] }
	out := make([]T, n)
	copy(out, x)
	return out
}

// Clone returns a deep copy of s with a new revision and no referrers.
func (s *Store) Clone() *Store {
	out := s.emptyLike(s.count)
	switch s.dataType {
	case Int: copy(out.i32, s.i32)
	case Int64: copy(out.i64, s.i64)
	case Float: copy(out.f64, s.f64)
	}
	return out
}

func (s *Store) CloneObject() object.Object { return s.Clone() }

// emptyLike returns a zeroed store with the same metadata as s and n
// elements.
func (s *Store) emptyLike(n int) *Store {
	out := &Store{
		kind: s.kind, class: s.class, name: s.name,
		dataType: s.dataType, components: s.components,
		componentNames: s.ComponentNames(),
	}
	out.Init()
	out.allocate(n)
	return out
}

// SameLayout returns true if two stores have the same name, class, data type
// and component count.
func (s *Store) SameLayout(other *Store) bool {
	return s.kind == other.kind && s.class == other.class &&
		s.name == other.name && s.dataType == other.dataType &&
		s.components == other.components
}

func (s *Store) String() string {
	return fmt.Sprintf("%s property '%s' (%s x %d, %d elements, rev %d)",
		s.class, s.name, s.dataType, s.components, s.count, s.Revision())
}
