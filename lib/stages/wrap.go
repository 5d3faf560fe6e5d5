package stages

import (
	"context"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
	"github.com/phil-mansfield/nbpipe/lib/thread"
)

// Wrap maps every particle into the primary image of the cell along the
// periodic axes. Bond shifts are corrected so that bonds still connect the
// same particle images.
type Wrap struct {
	pipeline.Params
}

var _ pipeline.Stage = &Wrap{ }

func NewWrap() *Wrap {
	s := &Wrap{ }
	s.Touch()
	return s
}

func (s *Wrap) Name() string { return "wrap" }

func (s *Wrap) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	cl, err := in.Cell()
	if err != nil { return in, fail(err) }
	if !cl.AnyPeriodic() {
		return in, pipeline.Warn("The cell has no periodic boundaries.")
	}
	x, err := positions(in)
	if err != nil { return in, fail(err) }

	n := len(x)
	wrapped := make([][3]float64, n)
	image := make([][3]int, n)
	err = thread.ParallelFor(ctx, n, 0, 0, func(start, end int) error {
		for i := start; i < end; i++ {
			var err error
			wrapped[i], image[i], err = cl.Wrap(x[i])
			if err != nil { return err }
		}
		return nil
	})
	if err != nil { return in, fail(err) }

	moved := false
	for i := range image {
		if image[i] != [3]int{ } {
			moved = true
			break
		}
	}
	// Nothing to do, so leave the revision alone.
	if !moved { return in, pipeline.OK() }

	pos, err := in.MutableProperty(property.PositionKind)
	if err != nil { return in, fail(err) }
	err = pos.Modify(func(m *property.Mutation) error {
		m.SetVec3s(wrapped)
		return nil
	})
	if err != nil { return in, fail(err) }

	if _, err := in.Bonds(); err != nil { return in, pipeline.OK() }
	list, err := in.MutableBonds()
	if err != nil { return in, fail(err) }
	if err := list.CheckIndices(n); err != nil { return in, fail(err) }
	for i, b := range list.Bonds() {
		shift := b.Shift
		for dim := 0; dim < 3; dim++ {
			shift[dim] += image[b.B][dim] - image[b.A][dim]
		}
		if shift == b.Shift { continue }
		if err := list.SetShift(i, shift); err != nil { return in, fail(err) }
	}
	return in, pipeline.OK()
}
