package snapio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/phil-mansfield/nbpipe/lib/property"
)

// BlockType is the on-disk layout of one particle's value in a block.
type BlockType int

const (
	U32 BlockType = iota
	U64
	F32
	F64
	V32
	V64
)

var blockTypeNames = []string{ "u32", "u64", "f32", "f64", "v32", "v64" }

func (t BlockType) String() string {
	if t < 0 || int(t) >= len(blockTypeNames) {
		return fmt.Sprintf("BlockType(%d)", int(t))
	}
	return blockTypeNames[t]
}

// ParseBlockType converts a type name such as "v32" into a BlockType.
func ParseBlockType(name string) (BlockType, error) {
	for i := range blockTypeNames {
		if blockTypeNames[i] == name { return BlockType(i), nil }
	}
	return 0, fmt.Errorf("'%s' is not a block type. The valid types are %s.",
		name, blockTypeNames)
}

func (t BlockType) Components() int {
	if t == V32 || t == V64 { return 3 }
	return 1
}

func (t BlockType) IsInt() bool { return t == U32 || t == U64 }

func (t BlockType) wordSize() int {
	switch t {
	case U32, F32, V32: return 4
	}
	return 8
}

// Size returns the number of bytes a single particle takes up.
func (t BlockType) Size() int { return t.wordSize()*t.Components() }

// BlockSpec names a block and gives its type.
type BlockSpec struct {
	Name string
	Type BlockType
}

// Kind returns the standard property the block is read into, if any.
func (b BlockSpec) Kind() (property.Kind, bool) {
	kind, ok := blockKinds[b.Name]
	return kind, ok
}

// ParseBlocks pairs up block names with type names. Names must be unique,
// and blocks which are read into standard properties need a type with the
// property's shape: "x" and "v" are float vectors, "id" is an integer and
// "phi" is a float.
func ParseBlocks(names, types []string) ([]BlockSpec, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("%d block names were given, but %d block " +
			"types were.", len(names), len(types))
	} else if len(names) == 0 {
		return nil, fmt.Errorf("No blocks were specified.")
	}

	blocks := make([]BlockSpec, len(names))
	for i := range names {
		for j := 0; j < i; j++ {
			if names[j] == names[i] {
				return nil, fmt.Errorf("The block name '%s' is used more " +
					"than once in %s.", names[i], names)
			}
		}

		typ, err := ParseBlockType(types[i])
		if err != nil {
			return nil, fmt.Errorf("Block '%s': %w", names[i], err)
		}
		blocks[i] = BlockSpec{ names[i], typ }
		if err := blocks[i].check(); err != nil { return nil, err }
	}
	return blocks, nil
}

func (b BlockSpec) check() error {
	kind, ok := b.Kind()
	if !ok { return nil }
	wantInt := kind.DataType() != property.Float
	if b.Type.Components() != kind.Components() || b.Type.IsInt() != wantInt {
		return fmt.Errorf("The block '%s' has type '%s', but the %s " +
			"property has %d %s component(s).", b.Name, b.Type, kind,
			kind.Components(), kind.DataType())
	}
	return nil
}

// blockNames returns the names of blocks.
func blockNames(blocks []BlockSpec) []string {
	names := make([]string, len(blocks))
	for i := range blocks { names[i] = blocks[i].Name }
	return names
}

// findBlock returns the index of the block with the given name, or -1.
func findBlock(blocks []BlockSpec, name string) int {
	for i := range blocks {
		if blocks[i].Name == name { return i }
	}
	return -1
}

// newStore allocates the property store the block is read into.
func (b BlockSpec) newStore(n int) (*property.Store, error) {
	if kind, ok := b.Kind(); ok { return property.New(kind, n) }
	dataType := property.Float
	if b.Type.IsInt() { dataType = property.Int64 }
	return property.NewUser(b.Name, property.ParticleClass, dataType, n,
		b.Type.Components())
}

// decode reads n values of the block from rd into a new property store.
func (b BlockSpec) decode(
	rd io.Reader, order binary.ByteOrder, n int,
) (*property.Store, error) {
	raw := make([]byte, n*b.Type.Size())
	if _, err := io.ReadFull(rd, raw); err != nil {
		return nil, fmt.Errorf("Could not read block '%s': %w", b.Name, err)
	}
	s, err := b.newStore(n)
	if err != nil { return nil, err }

	w, comps := b.Type.wordSize(), b.Type.Components()
	err = s.Modify(func(m *property.Mutation) error {
		for i := 0; i < n; i++ {
			for c := 0; c < comps; c++ {
				word := raw[(i*comps + c)*w:]
				switch b.Type {
				case U32:
					m.SetInt(i, c, int64(order.Uint32(word)))
				case U64:
					m.SetInt(i, c, int64(order.Uint64(word)))
				case F32, V32:
					m.SetFloat(i, c,
						float64(math.Float32frombits(order.Uint32(word))))
				default:
					m.SetFloat(i, c, math.Float64frombits(order.Uint64(word)))
				}
			}
		}
		return nil
	})
	if err != nil { return nil, err }
	return s, nil
}
