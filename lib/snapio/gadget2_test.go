package snapio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/phil-mansfield/nbpipe/lib/eq"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

var (
	testBlocks = []BlockSpec{ { "x", V32 }, { "v", V32 }, { "id", U64 } }
	order = binary.LittleEndian

	testX = [][3]float32{ {101.70, 93.76, 54.62}, {101.69, 93.74, 54.52},
		{101.70, 93.62, 54.49}, {101.71, 93.65, 54.60} }
	testV = [][3]float32{ {113.47, 3.75, 41.97}, {108.05, -7.03, 58.02},
		{115.16, -7.33, 39.29}, {119.56, 10.11, 30.37} }
	testID = []uint64{ 873202112, 873202111, 873201087, 873201088 }
)

// writeGadget2 writes a small Gadget-2 file of the given variant with the
// testX, testV, and testID blocks and returns its name. The file has
// 2^32 + 4 particles in total.
func writeGadget2(t *testing.T, variant Gadget2Variant) string {
	fileName := filepath.Join(t.TempDir(), "snapshot_000")
	writeGadget2To(t, fileName, variant, 0)
	return fileName
}

// writeGadget2To writes the test file to fileName, followed by junk bytes.
func writeGadget2To(
	t *testing.T, fileName string, variant Gadget2Variant, junk int,
) {
	n := len(testID)
	hd := gadget2Header{ }
	hd.NPart[1] = uint32(n)
	hd.NTotal[1] = uint32(n)
	if variant == LGadget2 {
		hd.NTotal[0] = 1
	} else {
		order.PutUint32(hd.Tail[8:12], 1)
	}
	hd.Mass[1] = 1.5
	hd.Redshift = 2.0
	hd.Omega0, hd.OmegaLambda, hd.HubbleParam = 0.286, 0.714, 0.7
	hd.BoxSize = 125.0

	buf := &bytes.Buffer{ }
	for _, block := range []interface{}{ &hd, testX, testV, testID } {
		b, err := arrayToBytes(block, order)
		if err != nil { t.Fatal(err) }
		binary.Write(buf, order, uint32(len(b)))
		buf.Write(b)
		binary.Write(buf, order, uint32(len(b)))
	}
	buf.Write(make([]byte, junk))

	if err := os.WriteFile(fileName, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestGadget2HeaderSize(t *testing.T) {
	if size := unsafe.Sizeof(gadget2Header{ }); size != gadget2HeaderBytes {
		t.Errorf("gadget2Header{} has size %d, not %d",
			size, gadget2HeaderBytes)
	}
	if size := binary.Size(gadget2Header{ }); size != gadget2HeaderBytes {
		t.Errorf("gadget2Header{} has encoded size %d, not %d",
			size, gadget2HeaderBytes)
	}
}

func TestOpenGadget2Failure(t *testing.T) {
	fileName := writeGadget2(t, Gadget2Cosmological)

	tiny := filepath.Join(t.TempDir(), "tiny_file.txt")
	if err := os.WriteFile(tiny, []byte("tiny"), 0644); err != nil {
		t.Fatal(err)
	}
	fileNames := []string{"file_that_doesn't_exist.dat", t.TempDir(), tiny}

	for _, fileName := range fileNames {
		_, err := OpenGadget2(fileName, Gadget2Cosmological, testBlocks, order)
		if err == nil {
			t.Errorf("Expected read of %s to fail, but succeeded.", fileName)
		}
	}

	tests := []struct{
		blocks []BlockSpec
	} {
		{ []BlockSpec{ } },
		{ []BlockSpec{ { "x", F32 } } },
		{ []BlockSpec{ { "v", F32 } } },
		{ []BlockSpec{ { "id", V32 } } },
		{ []BlockSpec{ { "id", F64 } } },
		// Too long for the file.
		{ []BlockSpec{ { "x", V32 }, { "v", V32 }, { "id", U64 },
			{ "phi", F32 } } },
		{ []BlockSpec{ { "x", V64 }, { "v", V64 }, { "id", U64 } } },
	}

	for i := range tests {
		_, err := OpenGadget2(fileName, Gadget2Cosmological,
			tests[i].blocks, order)
		if err == nil {
			t.Errorf("%d) Expected read with blocks %v to fail, but " +
				"succeeded", i, tests[i].blocks)
		}
	}
}

func TestOpenGadget2Header(t *testing.T) {
	for _, variant := range []Gadget2Variant{ Gadget2Cosmological, LGadget2 } {
		f, err := OpenGadget2(writeGadget2(t, variant), variant,
			testBlocks, order)
		if err != nil {
			t.Fatalf("%s: Expected valid read, got error message %s.",
				variant, err.Error())
		}
		hd := f.Header()

		names := []string{"x", "v", "id"}
		if n := blockNames(hd.Blocks); !eq.Slices(n, names) {
			t.Errorf("%s: Expected blocks %s, got %s", variant, names, n)
		}
		if hd.N != len(testID) {
			t.Errorf("%s: Expected N = %d, got %d.",
				variant, len(testID), hd.N)
		}
		nTotExp := int64(1)<<32 + int64(len(testID))
		if hd.NTot != nTotExp {
			t.Errorf("%s: Expected NTot = %d, got %d.",
				variant, nTotExp, hd.NTot)
		}

		tests := []struct{
			name string
			value, exp float64
		} {
			{ "Z", hd.Z, 2.0 },
			{ "OmegaM", hd.OmegaM, 0.286 },
			{ "OmegaL", hd.OmegaL, 0.714 },
			{ "H100", hd.H100, 0.7 },
			{ "L", hd.L, 125.0 },
			{ "Mass", hd.Mass, 1.5e10 },
		}
		for i := range tests {
			if tests[i].value != tests[i].exp {
				t.Errorf("%s: Expected %s = %g, got %g.", variant,
					tests[i].name, tests[i].exp, tests[i].value)
			}
		}
	}
}

func TestGadget2ReadBlock(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "snapshot_000")
	writeGadget2To(t, fileName, LGadget2, 100)
	f, err := OpenGadget2(fileName, LGadget2, testBlocks, order)
	if err != nil {
		t.Fatalf("Expected valid read, got error message %s.", err.Error())
	}

	// Read out of order.
	stores := map[string]*property.Store{ }
	for _, name := range []string{ "id", "x", "v" } {
		s, err := f.ReadBlock(name)
		if err != nil {
			t.Fatalf("Got error '%s' when reading %s", err.Error(), name)
		}
		stores[name] = s
	}
	if _, err := f.ReadBlock("phi"); err == nil {
		t.Errorf("Expected a read of a missing block to fail.")
	}

	vecs := []struct{
		name string
		exp [][3]float32
	} {
		{ "x", testX },
		{ "v", testV },
	}
	for _, vec := range vecs {
		got := stores[vec.name].Read().Vec3s()
		for i := range vec.exp {
			exp := [3]float64{ float64(vec.exp[i][0]),
				float64(vec.exp[i][1]), float64(vec.exp[i][2]) }
			if got[i] != exp {
				t.Errorf("%d) Expected %s = %v, got %v.",
					i, vec.name, exp, got[i])
			}
		}
	}

	ids := stores["id"].Read().Int64s()
	for i := range testID {
		if ids[i] != int64(testID[i]) {
			t.Errorf("%d) Expected id = %d, got %d.", i, testID[i], ids[i])
		}
	}
}

func TestGadget2ReadBlockWrongTypes(t *testing.T) {
	fileName := writeGadget2(t, Gadget2Cosmological)
	// Files may be longer than the blocks need, so this opens, but the second
	// block's size marker doesn't match its type.
	blocks := []BlockSpec{ { "a", V32 }, { "b", F32 } }
	f, err := OpenGadget2(fileName, Gadget2Cosmological, blocks, order)
	if err != nil { t.Fatal(err) }

	if _, err := f.ReadBlock("a"); err != nil { t.Fatal(err) }
	if _, err := f.ReadBlock("b"); err == nil {
		t.Errorf("Expected a read with the wrong block sizes to fail.")
	}
}

func TestReadCollection(t *testing.T) {
	f, err := OpenGadget2(writeGadget2(t, Gadget2Cosmological),
		Gadget2Cosmological, testBlocks, order)
	if err != nil { t.Fatal(err) }

	coll, err := ReadCollection(f)
	if err != nil { t.Fatal(err) }
	defer coll.Release()

	if n := coll.ParticleCount(); n != len(testID) {
		t.Errorf("Expected %d particles, got %d.", len(testID), n)
	}

	x, err := coll.Property(property.PositionKind)
	if err != nil { t.Fatal(err) }
	pos := x.Read().Vec3s()
	for i := range testX {
		exp := [3]float64{
			float64(testX[i][0]), float64(testX[i][1]), float64(testX[i][2]),
		}
		if pos[i] != exp {
			t.Errorf("%d) Expected position %v, got %v.", i, exp, pos[i])
		}
	}

	id, err := coll.Property(property.IdentifierKind)
	if err != nil { t.Fatal(err) }
	ids := id.Read().Int64s()
	for i := range testID {
		if ids[i] != int64(testID[i]) {
			t.Errorf("%d) Expected id %d, got %d.", i, testID[i], ids[i])
		}
	}

	if !coll.HasProperty(property.VelocityKind) {
		t.Errorf("Expected a Velocity property.")
	}

	cl, err := coll.Cell()
	if err != nil { t.Fatal(err) }
	if pbc := cl.PBC(); pbc != [3]bool{ true, true, true } {
		t.Errorf("Expected a fully periodic cell, got %v.", pbc)
	}

	attrs := []struct{
		name string
		exp float64
	} {
		{ RedshiftAttribute, 2.0 },
		{ MassAttribute, 1.5e10 },
		{ H100Attribute, 0.7 },
	}
	for i := range attrs {
		v, ok := coll.Attribute(attrs[i].name)
		if !ok || v != attrs[i].exp {
			t.Errorf("%d) Expected attribute %s = %g, got %v.",
				i, attrs[i].name, attrs[i].exp, v)
		}
	}
}

func TestReadCollectionUserBlocks(t *testing.T) {
	f, err := NewFakeFile(
		[]string{"x", "rho", "halo"},
		[]interface{}{
			[][3]float32{ {1, 2, 3}, {4, 5, 6} },
			[]float32{ 0.5, 1.5 },
			[]uint32{ 7, 8 },
		}, 2, binary.LittleEndian,
	)
	if err != nil { t.Fatal(err) }

	coll, err := ReadCollection(f)
	if err != nil { t.Fatal(err) }
	defer coll.Release()

	rho, err := coll.PropertyByName(property.ParticleClass, "rho")
	if err != nil { t.Fatal(err) }
	if got := rho.Read().Float64s(); !eq.Float64sEps(got, []float64{ 0.5, 1.5 }, 1e-6) {
		t.Errorf("Expected rho = [0.5 1.5], got %v.", got)
	}

	halo, err := coll.PropertyByName(property.ParticleClass, "halo")
	if err != nil { t.Fatal(err) }
	if got := halo.Read().Int64s(); !eq.Slices(got, []int64{ 7, 8 }) {
		t.Errorf("Expected halo = [7 8], got %v.", got)
	}
}

// brokenFile fails to read one of its blocks.
type brokenFile struct {
	*FakeFile
	broken string
}

func (f *brokenFile) ReadBlock(name string) (*property.Store, error) {
	if name == f.broken { return nil, fmt.Errorf("block %s is broken", name) }
	return f.FakeFile.ReadBlock(name)
}

func TestReadCollectionBrokenBlock(t *testing.T) {
	for _, broken := range []string{ "id", "x2", "phi" } {
		f := &brokenFile{ newTestFakeFile(t, binary.LittleEndian), broken }
		if coll, err := ReadCollection(f); err == nil {
			coll.Release()
			t.Errorf("Expected a broken '%s' block to fail.", broken)
		}
	}
}
