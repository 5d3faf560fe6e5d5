/*package cell implements the simulation cell: a parallelepiped spanned by three
edge vectors, an origin, and a periodic boundary flag for each axis.

Points are converted between absolute coordinates and reduced coordinates,
where the cell occupies [0, 1)^3. A degenerate (zero-volume) cell is a valid
value, but every conversion into reduced coordinates fails for it with
ErrDegenerateCell.
*/
package cell

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
)

const (
	// degenerateTolerance is the smallest allowed ratio of the cell volume
	// to the product of its edge lengths.
	degenerateTolerance = 1e-12
)

// Cell is the geometry and boundary conditions of a simulation box.
type Cell struct {
	object.Base

	vectors [3][3]float64
	origin [3]float64
	pbc [3]bool

	volume float64
	// inverse is the reciprocal cell matrix. It is only meaningful when
	// degenerate is false.
	inverse [3][3]float64
	degenerate bool
}

// Type assertion
var _ object.Object = &Cell{ }

// New creates a cell with edge vectors a, b, c starting at origin.
func New(a, b, c, origin [3]float64, pbc [3]bool) *Cell {
	cell := &Cell{ pbc: pbc }
	cell.Init()
	cell.setGeometry([3][3]float64{ a, b, c }, origin)
	return cell
}

// NewCubic creates a cube of width l with its corner at the origin.
func NewCubic(l float64, pbc [3]bool) *Cell {
	return New(
		[3]float64{ l, 0, 0 }, [3]float64{ 0, l, 0 }, [3]float64{ 0, 0, l },
		[3]float64{ }, pbc,
	)
}

// setGeometry stores the edge vectors and computes the volume and inverse.
func (c *Cell) setGeometry(vectors [3][3]float64, origin [3]float64) {
	c.vectors, c.origin = vectors, origin

	m := c.dense()
	c.volume = math.Abs(mat.Det(m))

	scale := norm(vectors[0]) * norm(vectors[1]) * norm(vectors[2])
	c.degenerate = scale == 0 || c.volume <= degenerateTolerance*scale
	if c.degenerate { return }

	inv := mat.NewDense(3, 3, nil)
	if err := inv.Inverse(m); err != nil {
		c.degenerate = true
		return
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c.inverse[i][j] = inv.At(i, j)
		}
	}
}

// dense returns the cell matrix, whose columns are the edge vectors.
func (c *Cell) dense() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m.Set(row, col, c.vectors[col][row])
		}
	}
	return m
}

// Vector returns edge vector i.
func (c *Cell) Vector(i int) [3]float64 { return c.vectors[i] }

// Vectors returns all three edge vectors.
func (c *Cell) Vectors() [3][3]float64 { return c.vectors }

func (c *Cell) Origin() [3]float64 { return c.origin }
func (c *Cell) PBC() [3]bool { return c.pbc }
func (c *Cell) Periodic(dim int) bool { return c.pbc[dim] }

// AnyPeriodic returns true if at least one axis is periodic.
func (c *Cell) AnyPeriodic() bool { return c.pbc[0] || c.pbc[1] || c.pbc[2] }

// Volume returns the (positive) volume of the cell.
func (c *Cell) Volume() float64 { return c.volume }

// IsDegenerate returns true if the cell has zero volume.
func (c *Cell) IsDegenerate() bool { return c.degenerate }

// ToReduced converts an absolute point to reduced coordinates.
func (c *Cell) ToReduced(p [3]float64) ([3]float64, error) {
	return c.ReducedVector(sub(p, c.origin))
}

// ReducedVector converts an absolute vector to reduced coordinates.
func (c *Cell) ReducedVector(v [3]float64) ([3]float64, error) {
	if c.degenerate {
		return [3]float64{ }, g_error.ErrDegenerateCell
	}
	out := [3]float64{ }
	for i := 0; i < 3; i++ {
		out[i] = c.inverse[i][0]*v[0] + c.inverse[i][1]*v[1] +
			c.inverse[i][2]*v[2]
	}
	return out, nil
}

// ToAbsolute converts a point in reduced coordinates to absolute coordinates.
func (c *Cell) ToAbsolute(r [3]float64) [3]float64 {
	return add(c.origin, c.AbsoluteVector(r))
}

// AbsoluteVector converts a reduced vector to absolute coordinates.
func (c *Cell) AbsoluteVector(r [3]float64) [3]float64 {
	out := [3]float64{ }
	for i := 0; i < 3; i++ {
		for dim := 0; dim < 3; dim++ {
			out[dim] += c.vectors[i][dim] * r[i]
		}
	}
	return out
}

// ShiftVector returns the displacement corresponding to an integer periodic
// image shift.
func (c *Cell) ShiftVector(shift [3]int) [3]float64 {
	return c.AbsoluteVector([3]float64{
		float64(shift[0]), float64(shift[1]), float64(shift[2]),
	})
}

// PlaneNormal returns the unit normal of the cell face spanned by the two
// edge vectors other than dim, oriented so that it points along vector dim.
func (c *Cell) PlaneNormal(dim int) [3]float64 {
	n := cross(c.vectors[(dim+1)%3], c.vectors[(dim+2)%3])
	l := norm(n)
	if l == 0 { return [3]float64{ } }
	n = scale(n, 1/l)
	if dot(n, c.vectors[dim]) < 0 { n = scale(n, -1) }
	return n
}

// Thickness returns the distance between the two faces of the cell that are
// perpendicular to PlaneNormal(dim).
func (c *Cell) Thickness(dim int) float64 {
	return math.Abs(dot(c.vectors[dim], c.PlaneNormal(dim)))
}

// Wrap maps p into the primary image of the cell along every periodic axis.
// It also returns the image p started in, so that
// p = wrapped + ShiftVector(image).
func (c *Cell) Wrap(p [3]float64) (wrapped [3]float64, image [3]int, err error) {
	if !c.AnyPeriodic() { return p, image, nil }

	r, err := c.ToReduced(p)
	if err != nil { return p, image, err }
	for dim := 0; dim < 3; dim++ {
		if !c.pbc[dim] { continue }
		f := math.Floor(r[dim])
		image[dim] = int(f)
		r[dim] -= f
	}
	return sub(p, c.ShiftVector(image)), image, nil
}

// SetGeometry replaces the edge vectors and origin. The cell must not be
// shared.
func (c *Cell) SetGeometry(a, b, d, origin [3]float64) error {
	if c.Shared() {
		return fmt.Errorf("simulation cell: %w", g_error.ErrSharedMutation)
	}
	c.setGeometry([3][3]float64{ a, b, d }, origin)
	c.Touch()
	return nil
}

// SetPBC replaces the periodic boundary flags. The cell must not be shared.
func (c *Cell) SetPBC(pbc [3]bool) error {
	if c.Shared() {
		return fmt.Errorf("simulation cell: %w", g_error.ErrSharedMutation)
	}
	c.pbc = pbc
	c.Touch()
	return nil
}

// Equal returns true if two cells have identical geometry and flags.
func (c *Cell) Equal(other *Cell) bool {
	return c.vectors == other.vectors && c.origin == other.origin &&
		c.pbc == other.pbc
}

// Clone returns a copy with a fresh revision and no referrers.
func (c *Cell) Clone() *Cell {
	out := *c
	out.Init()
	return &out
}

func (c *Cell) CloneObject() object.Object { return c.Clone() }

func (c *Cell) String() string {
	return fmt.Sprintf("Cell{a=%v b=%v c=%v origin=%v pbc=%v}",
		c.vectors[0], c.vectors[1], c.vectors[2], c.origin, c.pbc)
}

func add(x, y [3]float64) [3]float64 {
	return [3]float64{ x[0] + y[0], x[1] + y[1], x[2] + y[2] }
}

func sub(x, y [3]float64) [3]float64 {
	return [3]float64{ x[0] - y[0], x[1] - y[1], x[2] - y[2] }
}

func scale(x [3]float64, a float64) [3]float64 {
	return [3]float64{ x[0]*a, x[1]*a, x[2]*a }
}

func dot(x, y [3]float64) float64 { return x[0]*y[0] + x[1]*y[1] + x[2]*y[2] }

func norm(x [3]float64) float64 { return math.Sqrt(dot(x, x)) }

func cross(x, y [3]float64) [3]float64 {
	return [3]float64{
		x[1]*y[2] - x[2]*y[1],
		x[2]*y[0] - x[0]*y[2],
		x[0]*y[1] - x[1]*y[0],
	}
}
