package property

/* kind.go contains the table of standard property kinds. */

import (
	"fmt"
)

// DataType is the element type of a property's backing buffer.
type DataType int
const (
	Int DataType = iota // int32
	Int64
	Float // float64
)

func (t DataType) String() string {
	switch t {
	case Int: return "int32"
	case Int64: return "int64"
	case Float: return "float64"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Class says which element set a property belongs to.
type Class int
const (
	ParticleClass Class = iota
	BondClass
)

func (c Class) String() string {
	switch c {
	case ParticleClass: return "particle"
	case BondClass: return "bond"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Kind is the semantic type of a property. UserKind is reserved for
// properties which are identified only by their name.
type Kind int
const (
	UserKind Kind = iota
	TypeKind
	PositionKind
	SelectionKind
	ColorKind
	DisplacementKind
	DisplacementMagnitudeKind
	PotentialEnergyKind
	KineticEnergyKind
	VelocityKind
	RadiusKind
	ClusterKind
	CoordinationKind
	StructureTypeKind
	IdentifierKind
	ForceKind
	MassKind
	ChargeKind
	PeriodicImageKind
	VelocityMagnitudeKind
	MoleculeKind

	BondTypeKind
	BondSelectionKind
	BondColorKind
	BondLengthKind
)

type kindInfo struct {
	name string
	class Class
	dataType DataType
	// componentNames is nil for scalar properties.
	componentNames []string
}

var (
	xyz = []string{"X", "Y", "Z"}
	rgb = []string{"R", "G", "B"}

	standardKinds = map[Kind]kindInfo{
		TypeKind: {"Particle Type", ParticleClass, Int, nil},
		PositionKind: {"Position", ParticleClass, Float, xyz},
		SelectionKind: {"Selection", ParticleClass, Int, nil},
		ColorKind: {"Color", ParticleClass, Float, rgb},
		DisplacementKind: {"Displacement", ParticleClass, Float, xyz},
		DisplacementMagnitudeKind: {"Displacement Magnitude",
			ParticleClass, Float, nil},
		PotentialEnergyKind: {"Potential Energy", ParticleClass, Float, nil},
		KineticEnergyKind: {"Kinetic Energy", ParticleClass, Float, nil},
		VelocityKind: {"Velocity", ParticleClass, Float, xyz},
		RadiusKind: {"Radius", ParticleClass, Float, nil},
		ClusterKind: {"Cluster", ParticleClass, Int, nil},
		CoordinationKind: {"Coordination", ParticleClass, Int, nil},
		StructureTypeKind: {"Structure Type", ParticleClass, Int, nil},
		IdentifierKind: {"Particle Identifier", ParticleClass, Int64, nil},
		ForceKind: {"Force", ParticleClass, Float, xyz},
		MassKind: {"Mass", ParticleClass, Float, nil},
		ChargeKind: {"Charge", ParticleClass, Float, nil},
		PeriodicImageKind: {"Periodic Image", ParticleClass, Int, xyz},
		VelocityMagnitudeKind: {"Velocity Magnitude", ParticleClass,
			Float, nil},
		MoleculeKind: {"Molecule Identifier", ParticleClass, Int64, nil},

		BondTypeKind: {"Bond Type", BondClass, Int, nil},
		BondSelectionKind: {"Selection", BondClass, Int, nil},
		BondColorKind: {"Color", BondClass, Float, rgb},
		BondLengthKind: {"Length", BondClass, Float, nil},
	}
)

// IsStandard returns true if k is one of the predefined kinds.
func (k Kind) IsStandard() bool {
	_, ok := standardKinds[k]
	return ok
}

// String returns the default name of a standard kind.
func (k Kind) String() string {
	if info, ok := standardKinds[k]; ok { return info.name }
	if k == UserKind { return "User" }
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Class returns the element class of a standard kind. UserKind reports
// ParticleClass.
func (k Kind) Class() Class { return standardKinds[k].class }

// DataType returns the data type of a standard kind.
func (k Kind) DataType() DataType { return standardKinds[k].dataType }

// Components returns the number of components of a standard kind.
func (k Kind) Components() int {
	if n := len(standardKinds[k].componentNames); n > 0 { return n }
	return 1
}

// ComponentNames returns a copy of the component names of a standard kind.
func (k Kind) ComponentNames() []string {
	names := standardKinds[k].componentNames
	if names == nil { return nil }
	return append([]string{ }, names...)
}

// KindByName looks up the standard kind with the given class and default name.
func KindByName(class Class, name string) (Kind, bool) {
	for k, info := range standardKinds {
		if info.class == class && info.name == name { return k, true }
	}
	return UserKind, false
}
