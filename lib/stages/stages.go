/*package stages contains the modification stages nbpipe ships with. Each one
embeds pipeline.Params, so changing a parameter through its setter
invalidates the cached output of the stage and everything after it.

Setters must not be called while an evaluation is running.
*/
package stages

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// New returns the stage with the given name, configured with default
// parameters. These are the names used in config files.
func New(name string, cutoff, softening float64, n int) (pipeline.Stage, error) {
	switch name {
	case "coordination": return NewCoordination(cutoff), nil
	case "create_bonds": return NewCreateBonds(cutoff), nil
	case "bond_lengths": return NewBondLengths(), nil
	case "nearest_distance": return NewNearestDistance(n), nil
	case "wrap": return NewWrap(), nil
	case "delete_selected": return NewDeleteSelected(), nil
	case "potential": return NewPotential(softening), nil
	}
	return nil, fmt.Errorf("Unrecognized stage name '%s'. Valid names are " +
		"%v.", name, Names)
}

// Names lists every name New accepts.
var Names = []string{
	"coordination", "create_bonds", "bond_lengths", "nearest_distance",
	"wrap", "delete_selected", "potential",
}

// positions returns the position array of a collection.
func positions(in *collection.Collection) ([][3]float64, error) {
	s, err := in.Property(property.PositionKind)
	if err != nil { return nil, err }
	return s.Read().Vec3s(), nil
}

// fail converts an error into an Error status.
func fail(err error) pipeline.Status { return pipeline.Fail("%v", err) }

func add(x, y [3]float64) [3]float64 {
	return [3]float64{ x[0] + y[0], x[1] + y[1], x[2] + y[2] }
}

func sub(x, y [3]float64) [3]float64 {
	return [3]float64{ x[0] - y[0], x[1] - y[1], x[2] - y[2] }
}

func norm(x [3]float64) float64 {
	return math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
}
