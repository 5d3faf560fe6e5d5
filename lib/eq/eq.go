/*package eq is a simple package for telling whether two arrays are equal to
one another, exactly or to within a tolerance.*/
package eq

// Slices returns true if two arrays have the same length and the same values
// and false otherwise.
func Slices[T comparable](x, y []T) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// Generic returns true if two arrays are the same type and have the same values
// and false otherwise. Only []byte, []int, []int32, []int64, []uint32,
// []uint64, []string, []float32, []float64, [][3]int, [][3]float32 and
// [][3]float64 are supported.
func Generic(x, y interface{}) bool {
	switch xx := x.(type) {
	case []byte:
		yy, ok := y.([]byte)
		return ok && Slices(xx, yy)
	case []int:
		yy, ok := y.([]int)
		return ok && Slices(xx, yy)
	case []int32:
		yy, ok := y.([]int32)
		return ok && Slices(xx, yy)
	case []int64:
		yy, ok := y.([]int64)
		return ok && Slices(xx, yy)
	case []uint32:
		yy, ok := y.([]uint32)
		return ok && Slices(xx, yy)
	case []uint64:
		yy, ok := y.([]uint64)
		return ok && Slices(xx, yy)
	case []string:
		yy, ok := y.([]string)
		return ok && Slices(xx, yy)
	case []float32:
		yy, ok := y.([]float32)
		return ok && Slices(xx, yy)
	case []float64:
		yy, ok := y.([]float64)
		return ok && Slices(xx, yy)
	case [][3]int:
		yy, ok := y.([][3]int)
		return ok && Slices(xx, yy)
	case [][3]float32:
		yy, ok := y.([][3]float32)
		return ok && Slices(xx, yy)
	case [][3]float64:
		yy, ok := y.([][3]float64)
		return ok && Slices(xx, yy)
	}
	return false
}

// Float64sEps returns true if the two []float64 arrays are within eps of one
// another and false otherwise.
func Float64sEps(x, y []float64, eps float64) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if !Float64Eps(x[i], y[i], eps) { return false }
	}
	return true
}

// Float64Eps returns true if x and y are within eps of one another.
func Float64Eps(x, y, eps float64) bool {
	return x + eps >= y && x - eps <= y
}

// Vec64Eps returns true if every component of x and y is within eps.
func Vec64Eps(x, y [3]float64, eps float64) bool {
	for dim := 0; dim < 3; dim++ {
		if !Float64Eps(x[dim], y[dim], eps) { return false }
	}
	return true
}

// Vec64sEps returns true if the two [][3]float64 arrays are within eps of one
// another and false otherwise.
func Vec64sEps(x, y [][3]float64, eps float64) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if !Vec64Eps(x[i], y[i], eps) { return false }
	}
	return true
}
