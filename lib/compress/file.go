package compress

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/phil-mansfield/nbpipe/lib/bonds"
	"github.com/phil-mansfield/nbpipe/lib/cell"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

const (
	// MagicNumber is an arbirary number at the start of all nbpipe files
	// which should help identify when the code is run on somehting else by
	// accident.
	MagicNumber = 0xbadf00d1
	// ReverseMagicNumber is the magic number if read on a machine with
	// flipped endianness.
	ReverseMagicNumber = 0xd100dfba
	Version = 1
)

// FixedWidthHeader is the part of a file's header with a fixed size.
type FixedWidthHeader struct {
	Method uint32
	// N and HalfBonds give the number of particles and half-bonds.
	N, HalfBonds int64
	// HasCell and HasBonds are 1 if the collection had a cell or a bond list.
	HasCell, HasBonds uint32
	PBC [3]uint32
	Vectors [3][3]float64
	Origin [3]float64
}

// Writer writes collections to disk. One Writer can be reused for many files.
type Writer struct {
	method MethodFlag
	order binary.ByteOrder
	buf *Buffer
}

// NewWriter creates a Writer with the given compression method and byte
// order.
func NewWriter(method MethodFlag, order binary.ByteOrder) (*Writer, error) {
	if method >= numMethods {
		return nil, fmt.Errorf("Unrecognized compression method %s.", method)
	}
	return &Writer{ method, order, NewBuffer() }, nil
}

// WriteFile writes coll to the file fname.
func (w *Writer) WriteFile(fname string, coll *collection.Collection) error {
	fp, err := os.Create(fname)
	if err != nil { return err }

	bw := bufio.NewWriter(fp)
	if err = w.Write(bw, coll); err == nil { err = bw.Flush() }
	if cerr := fp.Close(); err == nil { err = cerr }
	return err
}

// Write writes coll to wr. coll must pass collection.Validate.
func (w *Writer) Write(wr io.Writer, coll *collection.Collection) error {
	if err := coll.Validate(); err != nil { return err }

	stores := append(coll.Properties(property.ParticleClass),
		coll.Properties(property.BondClass)...)

	hd := FixedWidthHeader{
		Method: uint32(w.method), HalfBonds: int64(coll.HalfBondCount()),
	}
	// Validate guarantees that every particle store has the same length.
	if particles := coll.Properties(property.ParticleClass); len(particles) > 0 {
		hd.N = int64(particles[0].Len())
	}
	if bondProps := coll.Properties(property.BondClass); len(bondProps) > 0 {
		hd.HalfBonds = int64(bondProps[0].Len())
	}
	if cl, err := coll.Cell(); err == nil {
		hd.HasCell = 1
		hd.Vectors, hd.Origin = cl.Vectors(), cl.Origin()
		for dim, p := range cl.PBC() {
			if p { hd.PBC[dim] = 1 }
		}
	}
	list, err := coll.Bonds()
	if err == nil { hd.HasBonds = 1 }

	if err := binary.Write(wr, w.order, uint32(MagicNumber)); err != nil {
		return err
	}
	if err := binary.Write(wr, w.order, uint32(Version)); err != nil {
		return err
	}
	if err := binary.Write(wr, w.order, &hd); err != nil { return err }

	if err := w.writeAttributes(wr, coll); err != nil { return err }

	if err := binary.Write(wr, w.order, uint32(len(stores))); err != nil {
		return err
	}
	for _, s := range stores {
		if err := w.writeStore(wr, s); err != nil { return err }
	}

	if hd.HasBonds == 1 { return w.writeBonds(wr, list) }
	return nil
}

func (w *Writer) writeAttributes(
	wr io.Writer, coll *collection.Collection,
) error {
	names := coll.AttributeNames()
	if err := binary.Write(wr, w.order, uint32(len(names))); err != nil {
		return err
	}

	for _, name := range names {
		if err := writeString(wr, w.order, name); err != nil { return err }
		value, _ := coll.Attribute(name)

		var err error
		switch x := value.(type) {
		case float64:
			if err = binary.Write(wr, w.order, uint8(0)); err == nil {
				err = binary.Write(wr, w.order, x)
			}
		case string:
			if err = binary.Write(wr, w.order, uint8(1)); err == nil {
				err = writeString(wr, w.order, x)
			}
		default:
			err = fmt.Errorf("Attribute '%s' has unsupported type %T.",
				name, value)
		}
		if err != nil { return err }
	}
	return nil
}

// storeHeader describes a property store in a file.
type storeHeader struct {
	Class, Standard, DataType, Components uint32
}

func (w *Writer) writeStore(wr io.Writer, s *property.Store) error {
	hd := storeHeader{
		Class: uint32(s.Class()), DataType: uint32(s.DataType()),
		Components: uint32(s.Components()),
	}
	if s.Kind().IsStandard() { hd.Standard = 1 }
	if err := binary.Write(wr, w.order, &hd); err != nil { return err }
	if err := writeString(wr, w.order, s.Name()); err != nil { return err }

	view := s.Read()
	n, nc := s.Len(), s.Components()
	w.buf.Resize(n)
	q := w.buf.q
	for c := 0; c < nc; c++ {
		switch s.DataType() {
		case property.Float:
			x := view.Float64s()
			for i := range q { q[i] = int64(math.Float64bits(x[i*nc + c])) }
		default:
			for i := range q { q[i] = view.Int(i, c) }
			DeltaEncode(0, q, q)
		}
		err := WriteCompressedInts(w.method, w.buf, w.order, wr)
		if err != nil { return err }
	}
	return nil
}

func (w *Writer) writeBonds(wr io.Writer, list *bonds.List) error {
	half := list.Bonds()
	w.buf.Resize(len(half))
	q := w.buf.q

	columns := []func(b bonds.Bond) int{
		func(b bonds.Bond) int { return b.A },
		func(b bonds.Bond) int { return b.B },
		func(b bonds.Bond) int { return b.Shift[0] },
		func(b bonds.Bond) int { return b.Shift[1] },
		func(b bonds.Bond) int { return b.Shift[2] },
	}
	for _, col := range columns {
		for i := range half { q[i] = int64(col(half[i])) }
		DeltaEncode(0, q, q)
		err := WriteCompressedInts(w.method, w.buf, w.order, wr)
		if err != nil { return err }
	}
	return nil
}

// Reader reads collections written by Writer.
type Reader struct {
	buf *Buffer
}

// NewReader creates a Reader.
func NewReader() *Reader { return &Reader{ NewBuffer() } }

// ReadFile reads the collection stored in fname.
func (r *Reader) ReadFile(fname string) (*collection.Collection, error) {
	fp, err := os.Open(fname)
	if err != nil { return nil, err }
	defer fp.Close()

	coll, err := r.Read(bufio.NewReader(fp))
	if err != nil {
		return nil, fmt.Errorf("Could not read %s: %w", fname, err)
	}
	return coll, nil
}

// Read reads a collection from rd.
func (r *Reader) Read(rd io.Reader) (*collection.Collection, error) {
	order, err := checkFile(rd)
	if err != nil { return nil, err }

	hd := FixedWidthHeader{ }
	if err := binary.Read(rd, order, &hd); err != nil { return nil, err }
	method := MethodFlag(hd.Method)
	if method >= numMethods {
		return nil, fmt.Errorf("Unrecognized compression method %s.", method)
	} else if hd.N < 0 || hd.HalfBonds < 0 {
		return nil, fmt.Errorf("The header gives %d particles and %d " +
			"half-bonds.", hd.N, hd.HalfBonds)
	}

	coll := collection.New()
	fail := func(err error) (*collection.Collection, error) {
		coll.Release()
		return nil, err
	}

	if hd.HasCell == 1 {
		var pbc [3]bool
		for dim := range pbc { pbc[dim] = hd.PBC[dim] == 1 }
		coll.SetCell(cell.New(hd.Vectors[0], hd.Vectors[1], hd.Vectors[2],
			hd.Origin, pbc))
	}

	if err := r.readAttributes(rd, order, coll); err != nil { return fail(err) }

	nStores := uint32(0)
	if err := binary.Read(rd, order, &nStores); err != nil { return fail(err) }
	stores := make([]*property.Store, nStores)
	for i := range stores {
		stores[i], err = r.readStore(rd, order, method, hd)
		if err != nil { return fail(err) }
	}

	if hd.HasBonds == 1 {
		list, err := r.readBonds(rd, order, method, int(hd.HalfBonds))
		if err != nil { return fail(err) }
		coll.SetBonds(list)
	}

	for _, s := range stores {
		if err := coll.AddProperty(s); err != nil { return fail(err) }
	}
	if err := coll.Validate(); err != nil { return fail(err) }

	return coll, nil
}

func (r *Reader) readAttributes(
	rd io.Reader, order binary.ByteOrder, coll *collection.Collection,
) error {
	n := uint32(0)
	if err := binary.Read(rd, order, &n); err != nil { return err }

	for i := uint32(0); i < n; i++ {
		name, err := readString(rd, order)
		if err != nil { return err }
		typ := uint8(0)
		if err := binary.Read(rd, order, &typ); err != nil { return err }

		var value interface{}
		switch typ {
		case 0:
			x := 0.0
			err = binary.Read(rd, order, &x)
			value = x
		case 1:
			value, err = readString(rd, order)
		default:
			err = fmt.Errorf("Attribute '%s' has unrecognized type flag %d.",
				name, typ)
		}
		if err != nil { return err }
		if err := coll.SetAttribute(name, value); err != nil { return err }
	}
	return nil
}

func (r *Reader) readStore(
	rd io.Reader, order binary.ByteOrder, method MethodFlag,
	fhd FixedWidthHeader,
) (*property.Store, error) {
	hd := storeHeader{ }
	if err := binary.Read(rd, order, &hd); err != nil { return nil, err }
	name, err := readString(rd, order)
	if err != nil { return nil, err }

	class := property.Class(hd.Class)
	n := int(fhd.N)
	if class == property.BondClass { n = int(fhd.HalfBonds) }

	var s *property.Store
	if hd.Standard == 1 {
		kind, ok := property.KindByName(class, name)
		if !ok {
			return nil, fmt.Errorf("'%s' is not a standard %s property.",
				name, class)
		}
		s, err = property.New(kind, n)
	} else {
		s, err = property.NewUser(name, class,
			property.DataType(hd.DataType), n, int(hd.Components))
	}
	if err != nil { return nil, err }
	if s.DataType() != property.DataType(hd.DataType) ||
		s.Components() != int(hd.Components) {
		return nil, fmt.Errorf("The property '%s' is stored as %d %s " +
			"components, but has %d %s components.", name, hd.Components,
			property.DataType(hd.DataType), s.Components(), s.DataType())
	}

	r.buf.Resize(n)
	q := r.buf.q
	nc := s.Components()
	err = s.Modify(func(m *property.Mutation) error {
		for c := 0; c < nc; c++ {
			err := ReadCompressedInts(method, r.buf, order, rd)
			if err != nil { return err }

			switch s.DataType() {
			case property.Float:
				x := m.Float64s()
				for i := range q { x[i*nc + c] = math.Float64frombits(uint64(q[i])) }
			case property.Int:
				DeltaDecode(0, q, q)
				x := m.Int32s()
				for i := range q { x[i*nc + c] = int32(q[i]) }
			case property.Int64:
				DeltaDecode(0, q, q)
				x := m.Int64s()
				for i := range q { x[i*nc + c] = q[i] }
			}
		}
		return nil
	})
	if err != nil { return nil, err }
	return s, nil
}

func (r *Reader) readBonds(
	rd io.Reader, order binary.ByteOrder, method MethodFlag, n int,
) (*bonds.List, error) {
	half := make([]bonds.Bond, n)
	r.buf.Resize(n)
	q := r.buf.q

	columns := []func(b *bonds.Bond, x int){
		func(b *bonds.Bond, x int) { b.A = x },
		func(b *bonds.Bond, x int) { b.B = x },
		func(b *bonds.Bond, x int) { b.Shift[0] = x },
		func(b *bonds.Bond, x int) { b.Shift[1] = x },
		func(b *bonds.Bond, x int) { b.Shift[2] = x },
	}
	for _, col := range columns {
		if err := ReadCompressedInts(method, r.buf, order, rd); err != nil {
			return nil, err
		}
		DeltaDecode(0, q, q)
		for i := range half { col(&half[i], int(q[i])) }
	}

	list := bonds.New()
	for i := range half {
		if err := list.AddHalf(half[i]); err != nil { return nil, err }
	}
	return list, nil
}

func writeString(wr io.Writer, order binary.ByteOrder, s string) error {
	if err := binary.Write(wr, order, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(wr, s)
	return err
}

func readString(rd io.Reader, order binary.ByteOrder) (string, error) {
	n := uint32(0)
	if err := binary.Read(rd, order, &n); err != nil { return "", err }
	b := make([]byte, n)
	if _, err := io.ReadFull(rd, b); err != nil { return "", err }
	return string(b), nil
}

// checkFile reads in the file's magic number and version number and makes
// sure that nbpipe can actually read it. If it can, the byte order is returned.
// Otherwise an error is returned.
func checkFile(rd io.Reader) (binary.ByteOrder, error) {
	var magicNumber, version uint32

	// Read the magic number and check that this is actually an nbpipe file.
	order := binary.ByteOrder(binary.LittleEndian)
	err := binary.Read(rd, order, &magicNumber)
	if err != nil { return nil, err }

	switch magicNumber {
	case MagicNumber:
	case ReverseMagicNumber: order = binary.BigEndian
	default:
		return nil, fmt.Errorf("This is not an nbpipe file. All nbpipe " +
			"files begin with either the 32-bit integer %x or %x. This file " +
			"begins with %x.", MagicNumber, ReverseMagicNumber, magicNumber)
	}

	// Check the version.
	if err = binary.Read(rd, order, &version); err != nil { return nil, err }
	if version > Version {
		return nil, fmt.Errorf("The file was created with file version %d, " +
			"but this is nbpipe file version %d. The file contains features " +
			"which weren't implemented when your code was written.",
			version, Version)
	}

	return order, nil
}
