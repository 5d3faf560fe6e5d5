package snapio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/phil-mansfield/nbpipe/lib/property"
)

// FakeFile implements File for tests. It is built from in-memory arrays,
// which are encoded with the file's byte order and decoded again on every
// ReadBlock, just as a block on disk would be.
type FakeFile struct {
	hd *Header
	data map[string][]byte
}

var _ File = &FakeFile{ }

// NewFakeFile creates a FakeFile with the given block names and values. The
// values must be []uint32, []uint64, []float32, []float64, [][3]float32, or
// [][3]float64 and all have the same length. The snapshot has nTot particles
// across all files. The box is 100 cMpc/h on a side, particles have unit
// mass, and the cosmology is z = 1, Om = 0.27, Ol = 0.73, h100 = 0.7.
func NewFakeFile(
	names []string, values []interface{}, nTot int, order binary.ByteOrder,
) (*FakeFile, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d names were given to NewFakeFile(), but " +
			"%d values were.", len(names), len(values))
	}

	types := make([]string, len(values))
	for i := range values {
		typ, ok := blockType(values[i])
		if !ok {
			return nil, fmt.Errorf("The block '%s' has type %T, which " +
				"isn't supported.", names[i], values[i])
		}
		types[i] = typ.String()
	}
	blocks, err := ParseBlocks(names, types)
	if err != nil { return nil, err }

	f := &FakeFile{ data: map[string][]byte{ } }
	f.hd = &Header{
		Order: order, Blocks: blocks, NTot: int64(nTot),
		Cosmology: Cosmology{ Z: 1, OmegaM: 0.27, OmegaL: 0.73, H100: 0.7 },
		L: 100, Mass: 1,
	}

	for i := range values {
		b, err := arrayToBytes(values[i], order)
		if err != nil { return nil, err }
		n := len(b) / blocks[i].Type.Size()
		if i == 0 {
			f.hd.N = n
		} else if n != f.hd.N {
			return nil, fmt.Errorf("The block '%s' has %d elements, but " +
				"the block '%s' has %d.", names[i], n, names[0], f.hd.N)
		}
		f.data[names[i]] = b
	}

	return f, nil
}

func (f *FakeFile) Header() *Header { return f.hd }

func (f *FakeFile) ReadBlock(name string) (*property.Store, error) {
	i := findBlock(f.hd.Blocks, name)
	if i == -1 {
		return nil, fmt.Errorf("The FakeFile doesn't have a block named " +
			"'%s'.", name)
	}
	rd := bytes.NewReader(f.data[name])
	return f.hd.Blocks[i].decode(rd, f.hd.Order, f.hd.N)
}

func blockType(x interface{}) (BlockType, bool) {
	switch x.(type) {
	case []uint32: return U32, true
	case []uint64: return U64, true
	case []float32: return F32, true
	case []float64: return F64, true
	case [][3]float32: return V32, true
	case [][3]float64: return V64, true
	}
	return 0, false
}

func arrayToBytes(x interface{}, order binary.ByteOrder) ([]byte, error) {
	buf := &bytes.Buffer{ }
	if err := binary.Write(buf, order, x); err != nil { return nil, err }
	return buf.Bytes(), nil
}
