/*package snapio reads simulation snapshots into collections. Adding support
for a new file format requires writing a type which implements File.

A snapshot file is a header followed by a list of blocks. Each block holds one
value per particle and is described by a BlockSpec: a short name and a type.
"u32" and "u64" are unsigned ints, "f32" and "f64" are floats, and "v32" and
"v64" are 3-vectors. Several common block names are read as standard
properties:

  x - Position
  v - Velocity
  id - Particle Identifier
  phi - Potential Energy

Every other block becomes a user property with the block's name.
*/
package snapio

import (
	"encoding/binary"

	"github.com/phil-mansfield/nbpipe/lib/cell"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Cosmology holds the cosmological parameters of a snapshot.
type Cosmology struct {
	Z, OmegaM, OmegaL, H100 float64
}

// Header describes a single snapshot file.
type Header struct {
	Order binary.ByteOrder
	Blocks []BlockSpec
	// N is the number of particles in the file and NTot is the number of
	// particles across every file in the snapshot.
	N int
	NTot int64
	Cosmology
	// L is the width of the periodic box. Files without a box have L = 0.
	L float64
	// Mass is the mass of a single particle.
	Mass float64
}

// File is a single snapshot file.
type File interface {
	Header() *Header
	// ReadBlock reads the named block into a new property store with N
	// elements.
	ReadBlock(name string) (*property.Store, error)
}

var blockKinds = map[string]property.Kind{
	"x": property.PositionKind,
	"v": property.VelocityKind,
	"id": property.IdentifierKind,
	"phi": property.PotentialEnergyKind,
}

// Attribute names set by ReadCollection.
const (
	RedshiftAttribute = "Redshift"
	OmegaMAttribute = "OmegaM"
	OmegaLAttribute = "OmegaL"
	H100Attribute = "H100"
	MassAttribute = "ParticleMass"
	TotalCountAttribute = "TotalParticles"
)

// ReadCollection reads every block of f into a new collection. A file with a
// box gets a fully periodic cubic cell, and the header's cosmology is stored
// in the collection's attributes.
func ReadCollection(f File) (*collection.Collection, error) {
	hd := f.Header()
	coll := collection.New()
	if err := readCollection(f, hd, coll); err != nil {
		coll.Release()
		return nil, err
	}
	return coll, nil
}

func readCollection(f File, hd *Header, coll *collection.Collection) error {
	for _, b := range hd.Blocks {
		s, err := f.ReadBlock(b.Name)
		if err != nil { return err }
		if err := coll.AddProperty(s); err != nil { return err }
	}

	if hd.L > 0 {
		coll.SetCell(cell.NewCubic(hd.L, [3]bool{ true, true, true }))
	}

	attrs := []struct{
		name string
		value float64
	} {
		{ RedshiftAttribute, hd.Z },
		{ OmegaMAttribute, hd.OmegaM },
		{ OmegaLAttribute, hd.OmegaL },
		{ H100Attribute, hd.H100 },
		{ MassAttribute, hd.Mass },
		{ TotalCountAttribute, float64(hd.NTot) },
	}
	for _, attr := range attrs {
		if err := coll.SetAttribute(attr.name, attr.value); err != nil {
			return err
		}
	}
	return nil
}
