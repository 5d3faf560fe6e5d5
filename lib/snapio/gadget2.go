package snapio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Gadget2Variant selects which header layout a Gadget-2 file uses. The two
// variants store blocks identically.
type Gadget2Variant int

const (
	// Gadget2Cosmological is the header written by vanilla Gadget-2.
	Gadget2Cosmological Gadget2Variant = iota
	// LGadget2 is the header written by LGadget-2.
	LGadget2
)

func (v Gadget2Variant) String() string {
	switch v {
	case Gadget2Cosmological: return "Gadget-2"
	case LGadget2: return "LGadget-2"
	}
	return fmt.Sprintf("Gadget2Variant(%d)", int(v))
}

const gadget2HeaderBytes = 256

// gadget2Header is the header block of a Gadget-2 file. Everything up to
// FlagAge is shared between variants. Tail holds the variant-specific rest.
type gadget2Header struct {
	NPart [6]uint32
	Mass [6]float64
	Time, Redshift float64
	FlagSFR, FlagFeedback uint32
	NTotal [6]uint32
	FlagCooling, NumFiles uint32
	BoxSize, Omega0, OmegaLambda, HubbleParam float64
	FlagAge uint32
	Tail [92]byte
}

// nTot returns the number of high-resolution (type 1) particles across all
// files. The high 32 bits live in NTotal[0] for LGadget-2 and in the
// NallHW[1] slot of the tail for Gadget-2.
func (raw *gadget2Header) nTot(
	v Gadget2Variant, order binary.ByteOrder,
) int64 {
	hi := uint64(raw.NTotal[0])
	if v == Gadget2Cosmological { hi = uint64(order.Uint32(raw.Tail[8:12])) }
	return int64(uint64(raw.NTotal[1]) + hi<<32)
}

// Gadget2 implements File for Gadget-2 and LGadget-2 files. Block order and
// types aren't stored in the files themselves, so they are given when the
// file is opened. Only the high-resolution (type 1) particles are read, and
// particle masses are assumed to be uniform.
type Gadget2 struct {
	fileName string
	hd *Header
	// offsets[i] is the position of the leading size marker of block i.
	offsets []int64
}

var _ File = &Gadget2{ }

// OpenGadget2 opens a Gadget-2 file of the given variant containing blocks.
// Files may have trailing data after the last block.
func OpenGadget2(
	fileName string, variant Gadget2Variant, blocks []BlockSpec,
	order binary.ByteOrder,
) (*Gadget2, error) {
	info, err := os.Stat(fileName)
	if err != nil {
		return nil, fmt.Errorf("The file %s cannot be opened: %w",
			fileName, err)
	} else if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a %s file.",
			fileName, variant)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("No blocks were given for %s.", fileName)
	}
	for _, b := range blocks {
		if err := b.check(); err != nil { return nil, err }
	}

	file, err := os.Open(fileName)
	if err != nil { return nil, err }
	defer file.Close()

	raw := &gadget2Header{ }
	err = readFramed(file, order, gadget2HeaderBytes, func(rd io.Reader) error {
		return binary.Read(rd, order, raw)
	})
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid %s file: %w",
			fileName, variant, err)
	}

	f := &Gadget2{ fileName: fileName, offsets: make([]int64, len(blocks)) }
	f.hd = &Header{
		Order: order, Blocks: blocks,
		N: int(raw.NPart[1]), NTot: raw.nTot(variant, order),
		Cosmology: Cosmology{
			Z: raw.Redshift, OmegaM: raw.Omega0,
			OmegaL: raw.OmegaLambda, H100: raw.HubbleParam,
		},
		L: raw.BoxSize, Mass: raw.Mass[1]*1e10,
	}

	end := int64(8 + gadget2HeaderBytes)
	for i, b := range blocks {
		f.offsets[i] = end
		end += 8 + int64(b.Type.Size())*int64(f.hd.N)
	}
	if end > info.Size() {
		return nil, fmt.Errorf("The blocks %s with types %s need %d bytes " +
			"for the %d particles in %s, but the file only has %d bytes. " +
			"Check that no blocks are missing and that the types are " +
			"right, particularly the size of 'id'.", blockNames(blocks),
			blockTypes(blocks), end, f.hd.N, fileName, info.Size())
	}

	return f, nil
}

func blockTypes(blocks []BlockSpec) []string {
	types := make([]string, len(blocks))
	for i := range blocks { types[i] = blocks[i].Type.String() }
	return types
}

func (f *Gadget2) Header() *Header { return f.hd }

// ReadBlock reads the named block. The Fortran size markers around the block
// must agree with the size implied by its type.
func (f *Gadget2) ReadBlock(name string) (*property.Store, error) {
	i := findBlock(f.hd.Blocks, name)
	if i == -1 {
		return nil, fmt.Errorf("%s has no block named '%s'. Its blocks " +
			"are %s.", f.fileName, name, blockNames(f.hd.Blocks))
	}
	b := f.hd.Blocks[i]

	file, err := os.Open(f.fileName)
	if err != nil { return nil, err }
	defer file.Close()
	if _, err := file.Seek(f.offsets[i], io.SeekStart); err != nil {
		return nil, err
	}

	var s *property.Store
	size := b.Type.Size()*f.hd.N
	err = readFramed(file, f.hd.Order, size, func(rd io.Reader) (err error) {
		s, err = b.decode(rd, f.hd.Order, f.hd.N)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Could not read block '%s' of %s, which " +
			"was given type '%s'. The earlier blocks may have the wrong " +
			"types or be missing: %w", name, f.fileName, b.Type, err)
	}
	return s, nil
}

// readFramed reads a Fortran record of size bytes, calling read on its
// contents. The markers before and after the record must both equal size.
func readFramed(
	rd io.Reader, order binary.ByteOrder, size int,
	read func(rd io.Reader) error,
) error {
	var head, tail uint32
	if err := binary.Read(rd, order, &head); err != nil { return err }
	if int(head) != size {
		return fmt.Errorf("the record has %d bytes, but %d were expected",
			head, size)
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(rd, raw); err != nil { return err }
	if err := read(bytes.NewReader(raw)); err != nil { return err }

	if err := binary.Read(rd, order, &tail); err != nil { return err }
	if tail != head {
		return fmt.Errorf("the record's size markers, %d and %d, don't match",
			head, tail)
	}
	return nil
}
