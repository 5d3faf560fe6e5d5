package stages

import (
	"context"

	"github.com/phil-mansfield/nbpipe/lib/bonds"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/neighbor"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
	"github.com/phil-mansfield/nbpipe/lib/thread"
)

// MaxCoordinationAttribute is the attribute Coordination stores the largest
// coordination number under.
const MaxCoordinationAttribute = "Coordination.max"

// Coordination counts the particle images within a cutoff of every particle
// and stores the counts in the Coordination property.
type Coordination struct {
	pipeline.Params
	cutoff float64
}

var _ pipeline.Stage = &Coordination{ }

func NewCoordination(cutoff float64) *Coordination {
	s := &Coordination{ cutoff: cutoff }
	s.Touch()
	return s
}

func (s *Coordination) Name() string { return "coordination" }
func (s *Coordination) Cutoff() float64 { return s.cutoff }

func (s *Coordination) SetCutoff(cutoff float64) {
	s.cutoff = cutoff
	s.Touch()
}

func (s *Coordination) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	f, err := neighbor.NewCutoffFinderFrom(ctx, s.cutoff, in)
	if err != nil { return in, fail(err) }

	n := f.ParticleCount()
	coord, err := property.New(property.CoordinationKind, n)
	if err != nil { return in, fail(err) }

	err = coord.Modify(func(m *property.Mutation) error {
		counts := m.Int32s()
		return thread.ParallelFor(ctx, n, 0, 0, func(start, end int) error {
			for i := start; i < end; i++ {
				q, err := f.Find(i)
				if err != nil { return err }
				k := int32(0)
				for q.Next() { k++ }
				counts[i] = k
			}
			return nil
		})
	})
	if err != nil { return in, fail(err) }

	maxK := int32(0)
	for _, k := range coord.Read().Int32s() {
		if k > maxK { maxK = k }
	}

	if err := in.AddProperty(coord); err != nil { return in, fail(err) }
	if err := in.SetAttribute(MaxCoordinationAttribute, maxK); err != nil {
		return in, fail(err)
	}
	if n == 0 { return in, pipeline.Warn("There are no particles.") }
	return in, pipeline.OK()
}

// CreateBonds connects every pair of particle images within a cutoff of each
// other. It replaces any existing bonds, and drops every bond property since
// they no longer line up with the new bonds.
type CreateBonds struct {
	pipeline.Params
	cutoff float64
}

var _ pipeline.Stage = &CreateBonds{ }

func NewCreateBonds(cutoff float64) *CreateBonds {
	s := &CreateBonds{ cutoff: cutoff }
	s.Touch()
	return s
}

func (s *CreateBonds) Name() string { return "create_bonds" }
func (s *CreateBonds) Cutoff() float64 { return s.cutoff }

func (s *CreateBonds) SetCutoff(cutoff float64) {
	s.cutoff = cutoff
	s.Touch()
}

func (s *CreateBonds) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	f, err := neighbor.NewCutoffFinderFrom(ctx, s.cutoff, in)
	if err != nil { return in, fail(err) }

	// Each pair is found from both ends. Only the half with the larger
	// partner index (or, for a particle's own images, the positive shift) is
	// kept and Add supplies its reverse.
	n := f.ParticleCount()
	found := make([][]neighbor.Neighbor, n)
	err = thread.ParallelFor(ctx, n, 0, 0, func(start, end int) error {
		for i := start; i < end; i++ {
			q, err := f.Find(i)
			if err != nil { return err }
			for q.Next() {
				nb := q.Current()
				if nb.Index > i || (nb.Index == i && positiveShift(nb.Shift)) {
					found[i] = append(found[i], nb)
				}
			}
		}
		return nil
	})
	if err != nil { return in, fail(err) }

	list := bonds.New()
	for i := range found {
		for _, nb := range found[i] {
			if err := list.Add(i, nb.Index, nb.Shift); err != nil {
				return in, fail(err)
			}
		}
	}

	for _, bp := range in.Properties(property.BondClass) {
		err := in.RemoveProperty(property.BondClass, bp.Kind(), bp.Name())
		if err != nil { return in, fail(err) }
	}
	in.SetBonds(list)
	return in, pipeline.OK()
}

// positiveShift returns true if the first non-zero component of shift is
// positive.
func positiveShift(shift [3]int) bool {
	for dim := 0; dim < 3; dim++ {
		if shift[dim] != 0 { return shift[dim] > 0 }
	}
	return false
}

// BondLengths computes the length of every half-bond, taking periodic shifts
// into account.
type BondLengths struct {
	pipeline.Params
}

var _ pipeline.Stage = &BondLengths{ }

func NewBondLengths() *BondLengths {
	s := &BondLengths{ }
	s.Touch()
	return s
}

func (s *BondLengths) Name() string { return "bond_lengths" }

func (s *BondLengths) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	x, err := positions(in)
	if err != nil { return in, fail(err) }
	list, err := in.Bonds()
	if err != nil { return in, fail(err) }
	if err := list.CheckIndices(len(x)); err != nil { return in, fail(err) }
	cl, cellErr := in.Cell()

	length, err := property.New(property.BondLengthKind, list.HalfCount())
	if err != nil { return in, fail(err) }
	err = length.Modify(func(m *property.Mutation) error {
		out := m.Float64s()
		for i, b := range list.Bonds() {
			delta := sub(x[b.B], x[b.A])
			if b.Shift != [3]int{ } {
				if cellErr != nil { return cellErr }
				delta = add(delta, cl.ShiftVector(b.Shift))
			}
			out[i] = norm(delta)
		}
		return nil
	})
	if err != nil { return in, fail(err) }

	if err := in.AddProperty(length); err != nil { return in, fail(err) }
	return in, pipeline.OK()
}
