package stages

import (
	"context"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// DeleteSelected removes every particle with a non-zero Selection. Bonds
// touching a deleted particle are removed along with their properties.
type DeleteSelected struct {
	pipeline.Params
}

var _ pipeline.Stage = &DeleteSelected{ }

func NewDeleteSelected() *DeleteSelected {
	s := &DeleteSelected{ }
	s.Touch()
	return s
}

func (s *DeleteSelected) Name() string { return "delete_selected" }

func (s *DeleteSelected) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	sel, err := in.Property(property.SelectionKind)
	if err != nil {
		return in, pipeline.Warn("There is no selection to delete.")
	}

	flags := sel.Read().Int32s()
	keep := make([]bool, len(flags))
	newIndex := make([]int, len(flags))
	deleted := 0
	for i := range flags {
		keep[i] = flags[i] == 0
		if keep[i] {
			newIndex[i] = i - deleted
		} else {
			newIndex[i], deleted = -1, deleted + 1
		}
	}
	if deleted == 0 { return in, pipeline.OK() }

	// Every store has to shrink at once, since the collection won't accept a
	// store whose length disagrees with the others.
	old := in.Properties(property.ParticleClass)
	filtered := make([]*property.Store, len(old))
	for i, ps := range old {
		if filtered[i], err = ps.Filter(keep); err != nil {
			return in, fail(err)
		}
	}
	for _, ps := range old {
		err := in.RemoveProperty(property.ParticleClass, ps.Kind(), ps.Name())
		if err != nil { return in, fail(err) }
	}
	for _, ps := range filtered {
		if err := in.AddProperty(ps); err != nil { return in, fail(err) }
	}

	if _, err := in.Bonds(); err != nil { return in, pipeline.OK() }
	list, err := in.MutableBonds()
	if err != nil { return in, fail(err) }
	bondKeep, err := list.Remap(newIndex)
	if err != nil { return in, fail(err) }

	for _, bs := range in.Properties(property.BondClass) {
		out, err := bs.Filter(bondKeep)
		if err != nil { return in, fail(err) }
		if err := in.AddProperty(out); err != nil { return in, fail(err) }
	}
	return in, pipeline.OK()
}
