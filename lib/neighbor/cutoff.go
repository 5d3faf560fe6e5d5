package neighbor

import (
	"context"
	"fmt"
	"math"

	"github.com/phil-mansfield/nbpipe/lib/cell"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Neighbor is one periodic image of one particle found by a query.
type Neighbor struct {
	// Index is the neighbor's particle index.
	Index int
	// Delta is the vector from the query point to this image of the
	// neighbor.
	Delta [3]float64
	// Shift is the periodic image of the neighbor, relative to the
	// positions the finder was built from.
	Shift [3]int
	DistanceSq float64
}

// Distance returns the length of Delta.
func (n Neighbor) Distance() float64 { return math.Sqrt(n.DistanceSq) }

// CutoffFinder finds all particle images within a fixed radius of a
// particle. It is safe for concurrent queries.
type CutoffFinder struct {
	grid *Grid
	cutoff, cutoffSq float64
}

// NewCutoffFinder builds a cutoff finder over positions. The cutoff must be
// positive and at most half the cell thickness along every periodic axis.
func NewCutoffFinder(
	ctx context.Context, cutoff float64, positions [][3]float64,
	cl *cell.Cell, opts ...Option,
) (*CutoffFinder, error) {
	if !(cutoff > 0) {
		return nil, fmt.Errorf("%w: the cutoff radius is %g, but must be " +
			"positive", g_error.ErrConstructionFailed, cutoff)
	}
	g, err := newGrid(ctx, cutoff, positions, cl, opts)
	if err != nil { return nil, err }
	return &CutoffFinder{ g, cutoff, cutoff*cutoff }, nil
}

// NewCutoffFinderFrom builds a cutoff finder over the positions and cell of
// a collection.
func NewCutoffFinderFrom(
	ctx context.Context, cutoff float64, coll *collection.Collection,
	opts ...Option,
) (*CutoffFinder, error) {
	pos, cl, err := inputs(coll)
	if err != nil { return nil, err }
	return NewCutoffFinder(ctx, cutoff, pos, cl, opts...)
}

// inputs pulls the position array and cell out of a collection.
func inputs(coll *collection.Collection) ([][3]float64, *cell.Cell, error) {
	s, err := coll.Property(property.PositionKind)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", g_error.ErrMissingInput, err)
	}
	cl, err := coll.Cell()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", g_error.ErrMissingInput, err)
	}
	return s.Read().Vec3s(), cl, nil
}

func (f *CutoffFinder) Cutoff() float64 { return f.cutoff }
func (f *CutoffFinder) ParticleCount() int { return f.grid.ParticleCount() }
func (f *CutoffFinder) Grid() *Grid { return f.grid }

// Find returns a cursor over the neighbors of particle i.
func (f *CutoffFinder) Find(i int) (*CutoffQuery, error) {
	if err := f.grid.checkIndex(i); err != nil { return nil, err }

	g := f.grid
	idx := g.binCoords(g.binOf[i])
	q := &CutoffQuery{ finder: f, center: i }
	for ox := -1; ox <= 1; ox++ {
		for oy := -1; oy <= 1; oy++ {
			for oz := -1; oz <= 1; oz++ {
				b, s, ok := g.offsetBin(idx, [3]int{ ox, oy, oz })
				if ok { q.stencil = append(q.stencil, stencilBin{ b, s }) }
			}
		}
	}
	return q, nil
}

// Neighbors returns every neighbor of particle i. The order is unspecified.
func (f *CutoffFinder) Neighbors(i int) ([]Neighbor, error) {
	q, err := f.Find(i)
	if err != nil { return nil, err }
	out := []Neighbor{ }
	for q.Next() { out = append(out, q.Current()) }
	return out, nil
}

type stencilBin struct {
	bin int
	shift [3]int
}

// CutoffQuery is a cursor over the neighbors of one particle. Each image
// within the cutoff is visited exactly once, and the particle's own
// zero-shift image is skipped. A query must not be shared between
// goroutines.
type CutoffQuery struct {
	finder *CutoffFinder
	center int
	stencil []stencilBin

	// Cursor state: the stencil entry and position within its bin that will
	// be examined next.
	s, k int
	current Neighbor
}

// Next advances to the next neighbor and returns false once there are no
// more.
func (q *CutoffQuery) Next() bool {
	g := q.finder.grid
	i := q.center
	for ; q.s < len(q.stencil); q.s, q.k = q.s + 1, 0 {
		sb := q.stencil[q.s]
		members := g.members(sb.bin)
		for q.k < len(members) {
			j := members[q.k]
			q.k++

			n := g.neighbor(j, sb.shift, g.positions[i], g.image[i])
			if j == i && n.Shift == [3]int{ } { continue }
			if n.DistanceSq <= q.finder.cutoffSq {
				q.current = n
				return true
			}
		}
	}
	return false
}

// Current returns the neighbor found by the last call to Next.
func (q *CutoffQuery) Current() Neighbor { return q.current }

// Reset rewinds the cursor to the first neighbor.
func (q *CutoffQuery) Reset() { q.s, q.k = 0, 0 }
