package stages

import (
	"context"
	"math"

	"github.com/phil-mansfield/gravitree"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Potential computes the gravitational potential of every particle with a
// Barnes-Hut tree and stores it in the Potential Energy property. All
// particles are assumed to have the same mass.
type Potential struct {
	pipeline.Params
	softening, g, mass float64
}

var _ pipeline.Stage = &Potential{ }

// NewPotential returns a stage with G = 1 and unit particle masses.
func NewPotential(softening float64) *Potential {
	s := &Potential{ softening: softening, g: 1, mass: 1 }
	s.Touch()
	return s
}

func (s *Potential) Name() string { return "potential" }
func (s *Potential) Softening() float64 { return s.softening }

func (s *Potential) SetSoftening(eps float64) {
	s.softening = eps
	s.Touch()
}

// SetUnits sets the gravitational constant and the particle mass.
func (s *Potential) SetUnits(g, mass float64) {
	s.g, s.mass = g, mass
	s.Touch()
}

func (s *Potential) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	x, err := positions(in)
	if err != nil { return in, fail(err) }
	if !(s.softening > 0) {
		return in, pipeline.Fail("The softening length is %g, but must be " +
			"positive.", s.softening)
	}
	if len(x) == 0 { return in, pipeline.Warn("There are no particles.") }

	dx, err := displacements(in, x)
	if err != nil { return in, fail(err) }

	pe := make([]float64, len(x))
	tree := newTree(dx)
	tree.Potential(s.softening, pe)
	if err := ctx.Err(); err != nil { return in, fail(err) }

	out, err := property.New(property.PotentialEnergyKind, len(x))
	if err != nil { return in, fail(err) }
	err = out.Modify(func(m *property.Mutation) error {
		buf := m.Float64s()
		for i := range pe { buf[i] = pe[i] * s.g * s.mass }
		return nil
	})
	if err != nil { return in, fail(err) }

	if err := in.AddProperty(out); err != nil { return in, fail(err) }
	return in, pipeline.OK()
}

// newTree builds a gravitree.Tree over x. gravitree v1.0.0 reserves a block
// of zeroed nodes at the front of Tree.Nodes and appends the real tree after
// it, so the walk from node 0 never terminates. newTree drops the reserved
// nodes and shifts the child indices down to match.
func newTree(x [][3]float64) *gravitree.Tree {
	tree := gravitree.NewTree(x)
	if len(x) == 0 { return tree }

	// The real root is the first node which spans any points.
	k := 0
	for k < len(tree.Nodes) && tree.Nodes[k].End == 0 { k++ }
	if k == 0 { return tree }

	tree.Nodes = tree.Nodes[k:]
	for i := range tree.Nodes {
		node := &tree.Nodes[i]
		if node.Left != -1 { node.Left -= k }
		if node.Right != -1 { node.Right -= k }
	}
	tree.Root = &tree.Nodes[0]
	return tree
}

// displacements returns the positions relative to the first particle. Along
// periodic axes the nearest image is used, so a group of particles which
// straddles the boundary stays together.
func displacements(
	in *collection.Collection, x [][3]float64,
) ([][3]float64, error) {
	dx := make([][3]float64, len(x))
	cl, err := in.Cell()
	if err != nil || !cl.AnyPeriodic() {
		for i := range x { dx[i] = sub(x[i], x[0]) }
		return dx, nil
	}

	pbc := cl.PBC()
	for i := range x {
		r, err := cl.ReducedVector(sub(x[i], x[0]))
		if err != nil { return nil, err }
		for dim := 0; dim < 3; dim++ {
			if pbc[dim] { r[dim] -= math.Round(r[dim]) }
		}
		dx[i] = cl.AbsoluteVector(r)
	}
	return dx, nil
}
