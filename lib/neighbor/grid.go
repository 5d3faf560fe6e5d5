/*package neighbor implements spatial neighbor queries over particle positions:
cutoff queries, which find every particle image within a fixed radius, and
nearest-neighbor queries, which find the N closest particle images.

Both finders are built on Grid, a cell list. Positions are converted to reduced
coordinates, wrapped into the primary image along periodic axes and
counting-sorted into bins. Every particle remembers which image it was wrapped
out of, so that the periodic shifts reported by queries are relative to the
positions the caller passed in: for a neighbor j of i,

    Delta = x[j] - x[i] + ShiftVector(Shift).
*/
package neighbor

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/phil-mansfield/nbpipe/lib/cell"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/thread"
)

const (
	// MaxBinsPerDim is the largest number of bins along one axis.
	MaxBinsPerDim = 128
	// TargetOccupancy is the mean number of particles per bin in grids built
	// for nearest-neighbor queries.
	TargetOccupancy = 2.0
)

// Option configures how a grid is built.
type Option func(*options)

type options struct {
	threads, chunk int
}

// Threads sets the number of goroutines used while building the grid.
// n <= 0 means thread.Count().
func Threads(n int) Option { return func(o *options) { o.threads = n } }

// Chunk sets the number of particles each worker handles between
// cancellation checks.
func Chunk(n int) Option { return func(o *options) { o.chunk = n } }

// Grid is a cell list over a set of positions.
type Grid struct {
	// cell holds the shift vectors; binCell is the box the bins divide. They
	// are the same except for degenerate non-periodic cells, which are
	// binned over the bounding box of the points.
	cell, binCell *cell.Cell
	pbc [3]bool

	positions [][3]float64
	// positions[i] - ShiftVector(image[i]) lies in the primary image.
	image [][3]int

	bins [3]int
	// binThickness[d] is the distance between the planes bounding a bin
	// along reduced axis d.
	binThickness [3]float64
	binOf []int
	// Particles in bin b are order[start[b]:start[b+1]].
	start []int
	order []int
}

// newGrid builds a grid. cutoff > 0 selects cutoff mode, where bins are at
// least cutoff thick, and cutoff == 0 selects nearest-neighbor mode.
func newGrid(
	ctx context.Context, cutoff float64, positions [][3]float64,
	cl *cell.Cell, opts []Option,
) (*Grid, error) {
	o := &options{ }
	for _, opt := range opts { opt(o) }

	if cl == nil {
		return nil, fmt.Errorf("%w: no simulation cell was given",
			g_error.ErrMissingInput)
	} else if positions == nil {
		return nil, fmt.Errorf("%w: no positions were given",
			g_error.ErrMissingInput)
	}

	g := &Grid{ cell: cl, binCell: cl, pbc: cl.PBC(), positions: positions }

	if cl.IsDegenerate() {
		if cl.AnyPeriodic() {
			return nil, fmt.Errorf("%w: the simulation cell %s has zero " +
				"volume but periodic boundaries", g_error.ErrConstructionFailed,
				cl)
		}
		g.binCell = boundingBox(positions)
	}

	if err := g.setBins(cutoff); err != nil { return nil, err }

	if err := g.bin(ctx, o); err != nil {
		return nil, fmt.Errorf("%w: %w", g_error.ErrConstructionFailed, err)
	}

	if glog.V(2) {
		glog.Infof("Built %dx%dx%d neighbor grid over %d particles " +
			"(cutoff %g).", g.bins[0], g.bins[1], g.bins[2],
			len(positions), cutoff)
	}
	return g, nil
}

// boundingBox returns a non-periodic, axis-aligned cell containing every
// point. Flat axes are given unit width.
func boundingBox(positions [][3]float64) *cell.Cell {
	min, max := [3]float64{ }, [3]float64{ }
	if len(positions) > 0 { min, max = positions[0], positions[0] }
	for _, p := range positions {
		for dim := 0; dim < 3; dim++ {
			min[dim] = math.Min(min[dim], p[dim])
			max[dim] = math.Max(max[dim], p[dim])
		}
	}

	width := [3]float64{ }
	for dim := 0; dim < 3; dim++ {
		width[dim] = max[dim] - min[dim]
		if width[dim] <= 0 { width[dim] = 1 }
	}
	return cell.New(
		[3]float64{ width[0], 0, 0 }, [3]float64{ 0, width[1], 0 },
		[3]float64{ 0, 0, width[2] }, min, [3]bool{ },
	)
}

// setBins chooses the number of bins along each axis.
func (g *Grid) setBins(cutoff float64) error {
	width := cutoff
	if cutoff == 0 {
		n := len(g.positions)
		if n == 0 { n = 1 }
		width = math.Cbrt(g.binCell.Volume() * TargetOccupancy / float64(n))
	} else if cutoff < 0 || math.IsNaN(cutoff) {
		return fmt.Errorf("%w: the cutoff radius is %g, but must be positive",
			g_error.ErrConstructionFailed, cutoff)
	}

	for dim := 0; dim < 3; dim++ {
		th := g.binCell.Thickness(dim)
		if cutoff > 0 && g.pbc[dim] && cutoff > th/2 {
			return fmt.Errorf("%w: the cutoff radius %g is larger than " +
				"half the cell thickness along periodic axis %d, %g",
				g_error.ErrConstructionFailed, cutoff, dim, th/2)
		}

		nb := 1
		if width > 0 && !math.IsInf(th / width, 1) {
			nb = int(math.Floor(th / width))
		}
		if nb < 1 { nb = 1 }
		if nb > MaxBinsPerDim { nb = MaxBinsPerDim }

		g.bins[dim] = nb
		g.binThickness[dim] = th / float64(nb)
	}
	return nil
}

// bin wraps every position, records its image and sorts particles into bins.
func (g *Grid) bin(ctx context.Context, o *options) error {
	n := len(g.positions)
	g.image = make([][3]int, n)
	g.binOf = make([]int, n)
	binOf := g.binOf

	err := thread.ParallelFor(ctx, n, o.chunk, o.threads,
		func(start, end int) error {
			for i := start; i < end; i++ {
				b, img, err := g.locate(g.positions[i])
				if err != nil { return err }
				binOf[i], g.image[i] = b, img
			}
			return nil
		})
	if err != nil { return err }

	// Counting sort.
	nBins := g.bins[0]*g.bins[1]*g.bins[2]
	g.start = make([]int, nBins + 1)
	for _, b := range binOf { g.start[b + 1]++ }
	for b := 0; b < nBins; b++ { g.start[b + 1] += g.start[b] }

	next := append([]int{ }, g.start[:nBins]...)
	g.order = make([]int, n)
	for i, b := range binOf {
		g.order[next[b]] = i
		next[b]++
	}
	return nil
}

// locate returns the bin containing p and the image p was wrapped out of.
func (g *Grid) locate(p [3]float64) (bin int, image [3]int, err error) {
	r, err := g.binCell.ToReduced(p)
	if err != nil { return 0, image, err }

	idx := [3]int{ }
	for dim := 0; dim < 3; dim++ {
		if g.pbc[dim] {
			f := math.Floor(r[dim])
			image[dim] = int(f)
			r[dim] -= f
		}
		idx[dim] = clamp(int(math.Floor(r[dim]*float64(g.bins[dim]))),
			0, g.bins[dim] - 1)
	}

	return g.binIndex(idx), image, nil
}

func (g *Grid) binIndex(idx [3]int) int {
	return idx[0] + g.bins[0]*(idx[1] + g.bins[1]*idx[2])
}

// binCoords is the inverse of binIndex.
func (g *Grid) binCoords(b int) [3]int {
	return [3]int{
		b % g.bins[0], (b / g.bins[0]) % g.bins[1], b / (g.bins[0]*g.bins[1]),
	}
}

// offsetBin applies a bin offset to idx. It returns the resulting bin and the
// number of cell images the offset crossed, or ok = false if the offset
// leaves the grid along a non-periodic axis.
func (g *Grid) offsetBin(
	idx, offset [3]int,
) (bin int, shift [3]int, ok bool) {
	out := [3]int{ }
	for dim := 0; dim < 3; dim++ {
		x := idx[dim] + offset[dim]
		if g.pbc[dim] {
			shift[dim] = floorDiv(x, g.bins[dim])
			x -= shift[dim]*g.bins[dim]
		} else if x < 0 || x >= g.bins[dim] {
			return 0, shift, false
		}
		out[dim] = x
	}
	return g.binIndex(out), shift, true
}

// members returns the particles in bin b.
func (g *Grid) members(b int) []int { return g.order[g.start[b]:g.start[b+1]] }

// Bins returns the number of bins along each axis.
func (g *Grid) Bins() [3]int { return g.bins }

// ParticleCount returns the number of particles in the grid.
func (g *Grid) ParticleCount() int { return len(g.positions) }

// Cell returns the simulation cell the grid was built with.
func (g *Grid) Cell() *cell.Cell { return g.cell }

// neighbor builds the record for image shiftBin of particle j as seen from
// point, which is in the caller's frame and was wrapped out of centerImage.
// Delta is taken from the unwrapped positions so that images with equal
// distances compare equal.
func (g *Grid) neighbor(
	j int, shiftBin [3]int, point [3]float64, centerImage [3]int,
) Neighbor {
	shift := [3]int{ }
	for dim := 0; dim < 3; dim++ {
		shift[dim] = shiftBin[dim] - g.image[j][dim] + centerImage[dim]
	}

	delta := [3]float64{ }
	for dim := 0; dim < 3; dim++ { delta[dim] = g.positions[j][dim] - point[dim] }
	if shift != [3]int{ } {
		sv := g.cell.ShiftVector(shift)
		for dim := 0; dim < 3; dim++ { delta[dim] += sv[dim] }
	}

	return Neighbor{
		Index: j, Delta: delta, Shift: shift,
		DistanceSq: delta[0]*delta[0] + delta[1]*delta[1] + delta[2]*delta[2],
	}
}

func (g *Grid) checkIndex(i int) error {
	if i < 0 || i >= len(g.positions) {
		return fmt.Errorf("%w: particle %d is outside [0, %d)",
			g_error.ErrIndexOutOfRange, i, len(g.positions))
	}
	return nil
}

func clamp(x, lo, hi int) int {
	if x < lo { return lo }
	if x > hi { return hi }
	return x
}

func floorDiv(x, n int) int {
	q := x / n
	if x % n != 0 && x < 0 { q-- }
	return q
}
