package neighbor

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/phil-mansfield/nbpipe/lib/cell"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
)

// MaxNeighbors is the largest N a NearestFinder accepts.
const MaxNeighbors = 30

// NearestFinder finds the N nearest particle images to a particle or to an
// arbitrary point. It is safe for concurrent queries.
type NearestFinder struct {
	grid *Grid
	n int
	// A particle k bins away from a point along some axis is at least
	// (k - 1)*minBinThickness away from it.
	minBinThickness float64
}

// NewNearestFinder builds a nearest-neighbor finder over positions. n must be
// in [1, MaxNeighbors].
func NewNearestFinder(
	ctx context.Context, n int, positions [][3]float64, cl *cell.Cell,
	opts ...Option,
) (*NearestFinder, error) {
	if n < 1 || n > MaxNeighbors {
		return nil, fmt.Errorf("%w: %d neighbors were requested, but the " +
			"number must be between 1 and %d", g_error.ErrConstructionFailed,
			n, MaxNeighbors)
	}
	g, err := newGrid(ctx, 0, positions, cl, opts)
	if err != nil { return nil, err }

	f := &NearestFinder{ grid: g, n: n, minBinThickness: math.Inf(1) }
	for dim := 0; dim < 3; dim++ {
		f.minBinThickness = math.Min(f.minBinThickness, g.binThickness[dim])
	}
	return f, nil
}

// NewNearestFinderFrom builds a nearest-neighbor finder over the positions
// and cell of a collection.
func NewNearestFinderFrom(
	ctx context.Context, n int, coll *collection.Collection, opts ...Option,
) (*NearestFinder, error) {
	pos, cl, err := inputs(coll)
	if err != nil { return nil, err }
	return NewNearestFinder(ctx, n, pos, cl, opts...)
}

func (f *NearestFinder) N() int { return f.n }
func (f *NearestFinder) ParticleCount() int { return f.grid.ParticleCount() }
func (f *NearestFinder) Grid() *Grid { return f.grid }

// Find returns the N nearest images to particle i, excluding i's own
// zero-shift image.
func (f *NearestFinder) Find(i int) (*NearestQuery, error) {
	g := f.grid
	if err := g.checkIndex(i); err != nil { return nil, err }
	return f.search(g.binCoords(g.binOf[i]), g.positions[i], g.image[i], i), nil
}

// FindAt returns the N nearest images to the point p. Particles which sit
// exactly on p are included.
func (f *NearestFinder) FindAt(p [3]float64) (*NearestQuery, error) {
	b, image, err := f.grid.locate(p)
	if err != nil { return nil, err }
	return f.search(f.grid.binCoords(b), p, image, -1), nil
}

// search runs the shell search around bin idx for point, which was wrapped
// out of centerImage. exclude is the particle whose zero-shift image is
// skipped, or -1.
func (f *NearestFinder) search(
	idx [3]int, point [3]float64, centerImage [3]int, exclude int,
) *NearestQuery {
	g := f.grid
	h := &neighborHeap{ }
	periodic := g.pbc[0] || g.pbc[1] || g.pbc[2]

	if g.ParticleCount() == 0 || (exclude != -1 && !periodic &&
		g.ParticleCount() == 1) {
		return &NearestQuery{ k: -1 }
	}

	// Without periodic axes, no bin is more than reach bins away.
	reach := 0
	for dim := 0; dim < 3; dim++ {
		reach = max(reach, idx[dim], g.bins[dim] - 1 - idx[dim])
	}

	visit := func(offset [3]int) {
		b, shift, ok := g.offsetBin(idx, offset)
		if !ok { return }
		for _, j := range g.members(b) {
			n := g.neighbor(j, shift, point, centerImage)
			if j == exclude && n.Shift == [3]int{ } { continue }
			if h.Len() < f.n {
				heap.Push(h, n)
			} else if less(n, (*h)[0]) {
				(*h)[0] = n
				heap.Fix(h, 0)
			}
		}
	}

	for k := 0; ; k++ {
		if h.Len() == f.n {
			lb := float64(k - 1)*f.minBinThickness
			if k > 0 && lb*lb > (*h)[0].DistanceSq { break }
		}
		if !periodic && k > reach { break }
		forShell(k, visit)
	}

	out := make([]Neighbor, h.Len())
	copy(out, *h)
	sort.Slice(out, func(a, b int) bool { return less(out[a], out[b]) })
	return &NearestQuery{ results: out, k: -1 }
}

// forShell calls f on every bin offset with Chebyshev norm k.
func forShell(k int, f func(offset [3]int)) {
	if k == 0 {
		f([3]int{ })
		return
	}
	for x := -k; x <= k; x++ {
		for y := -k; y <= k; y++ {
			if x == -k || x == k || y == -k || y == k {
				for z := -k; z <= k; z++ { f([3]int{ x, y, z }) }
			} else {
				f([3]int{ x, y, -k })
				f([3]int{ x, y, k })
			}
		}
	}
}

// less orders neighbors by distance, then index, then shift.
func less(a, b Neighbor) bool {
	if a.DistanceSq != b.DistanceSq { return a.DistanceSq < b.DistanceSq }
	if a.Index != b.Index { return a.Index < b.Index }
	for dim := 0; dim < 3; dim++ {
		if a.Shift[dim] != b.Shift[dim] { return a.Shift[dim] < b.Shift[dim] }
	}
	return false
}

// neighborHeap is a max-heap: the worst neighbor found so far is on top.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() interface{} {
	old := *h
	x := old[len(old) - 1]
	*h = old[:len(old) - 1]
	return x
}

// NearestQuery holds the result of a nearest-neighbor search, sorted from
// nearest to farthest. It can be read either with Results or as a cursor.
type NearestQuery struct {
	results []Neighbor
	k int
}

// Results returns the neighbors from nearest to farthest.
func (q *NearestQuery) Results() []Neighbor { return q.results }

// Len returns the number of neighbors found.
func (q *NearestQuery) Len() int { return len(q.results) }

// Next advances to the next neighbor and returns false once there are no
// more.
func (q *NearestQuery) Next() bool {
	if q.k + 1 >= len(q.results) {
		q.k = len(q.results)
		return false
	}
	q.k++
	return true
}

// Current returns the neighbor found by the last call to Next.
func (q *NearestQuery) Current() Neighbor { return q.results[q.k] }

// Reset rewinds the cursor to the first neighbor.
func (q *NearestQuery) Reset() { q.k = -1 }
