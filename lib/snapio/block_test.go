package snapio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/phil-mansfield/nbpipe/lib/eq"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

func TestParseBlockType(t *testing.T) {
	tests := []struct{
		name string
		typ BlockType
		size int
		valid bool
	} {
		{ "u32", U32, 4, true },
		{ "u64", U64, 8, true },
		{ "f32", F32, 4, true },
		{ "f64", F64, 8, true },
		{ "v32", V32, 12, true },
		{ "v64", V64, 24, true },
		{ "i32", 0, 0, false },
		{ "V32", 0, 0, false },
		{ "", 0, 0, false },
	}

	for i := range tests {
		typ, err := ParseBlockType(tests[i].name)
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected '%s' to be valid, got error %s.",
				i, tests[i].name, err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected '%s' to be invalid.", i, tests[i].name)
		} else if tests[i].valid {
			if typ != tests[i].typ || typ.Size() != tests[i].size {
				t.Errorf("%d) Expected '%s' to give %s with size %d, got " +
					"%s with size %d.", i, tests[i].name, tests[i].typ,
					tests[i].size, typ, typ.Size())
			}
			if typ.String() != tests[i].name {
				t.Errorf("%d) Expected String() = '%s', got '%s'.",
					i, tests[i].name, typ.String())
			}
		}
	}
}

func TestParseBlocks(t *testing.T) {
	tests := []struct{
		names, types []string
		valid bool
	} {
		{ []string{"x", "v", "id"}, []string{"v32", "v32", "u64"}, true },
		{ []string{"x", "v", "id", "phi"},
			[]string{"v64", "v64", "u32", "f32"}, true },
		{ []string{"rho", "halo", "acc"},
			[]string{"f64", "u32", "v32"}, true },
		{ []string{ }, []string{ }, false },
		{ []string{"x", "v"}, []string{"v32"}, false },
		{ []string{"x"}, []string{"x32"}, false },
		{ []string{"x"}, []string{"f32"}, false },
		{ []string{"v"}, []string{"u32"}, false },
		{ []string{"id"}, []string{"v32"}, false },
		{ []string{"id"}, []string{"f64"}, false },
		{ []string{"phi"}, []string{"u64"}, false },
		{ []string{"x", "x", "id"}, []string{"v32", "v32", "u64"}, false },
	}

	for i := range tests {
		blocks, err := ParseBlocks(tests[i].names, tests[i].types)
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected names = %s, types = %s to be valid, " +
				"got error %s.", i, tests[i].names, tests[i].types,
				err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected names = %s, types = %s to be invalid.",
				i, tests[i].names, tests[i].types)
		} else if tests[i].valid {
			if names := blockNames(blocks); !eq.Slices(names, tests[i].names) {
				t.Errorf("%d) Expected names %s, got %s.",
					i, tests[i].names, names)
			}
			if types := blockTypes(blocks); !eq.Slices(types, tests[i].types) {
				t.Errorf("%d) Expected types %s, got %s.",
					i, tests[i].types, types)
			}
		}
	}
}

func TestBlockDecode(t *testing.T) {
	tests := []struct{
		block BlockSpec
		data interface{}
		exp []float64
	} {
		{ BlockSpec{ "id", U32 }, []uint32{ 0, 1<<32 - 1 },
			[]float64{ 0, 1<<32 - 1 } },
		{ BlockSpec{ "id", U64 }, []uint64{ 7, 1<<40 }, []float64{ 7, 1<<40 } },
		{ BlockSpec{ "phi", F32 }, []float32{ -0.5, 2.25 },
			[]float64{ -0.5, 2.25 } },
		{ BlockSpec{ "rho", F64 }, []float64{ 1e-300, -1e300 },
			[]float64{ 1e-300, -1e300 } },
		{ BlockSpec{ "x", V32 }, [][3]float32{ {1, 2, 3}, {4, 5, 6} },
			[]float64{ 1, 2, 3, 4, 5, 6 } },
		{ BlockSpec{ "acc", V64 }, [][3]float64{ {-1, 0, 1}, {1e9, 0, 0} },
			[]float64{ -1, 0, 1, 1e9, 0, 0 } },
	}

	for _, order := range []binary.ByteOrder{
		binary.LittleEndian, binary.BigEndian,
	} {
		for i := range tests {
			b, err := arrayToBytes(tests[i].data, order)
			if err != nil { t.Fatal(err) }

			s, err := tests[i].block.decode(bytes.NewReader(b), order, 2)
			if err != nil {
				t.Errorf("%d) Expected %v to decode, got error %s.",
					i, tests[i].block, err.Error())
				continue
			}

			v := s.Read()
			got := []float64{ }
			for j := 0; j < v.Len(); j++ {
				for c := 0; c < v.Components(); c++ {
					got = append(got, v.Float(j, c))
				}
			}
			if !eq.Slices(got, tests[i].exp) {
				t.Errorf("%d) Expected %v to decode to %g, got %g.",
					i, tests[i].block, tests[i].exp, got)
			}

			// Too short.
			_, err = tests[i].block.decode(bytes.NewReader(b), order, 3)
			if err == nil {
				t.Errorf("%d) Expected a short read of %v to fail.",
					i, tests[i].block)
			}
		}
	}
}

func TestSheetIDs(t *testing.T) {
	gw := 4
	f := &Sheet{
		origin: [3]int{ 2, 0, 3 }, order: NewZMajorUnigrid(gw),
		sw: 2, gw: 3, hd: &Header{ Blocks: sheetBlocks, N: 8 },
	}

	s, err := f.ReadBlock("id")
	if err != nil { t.Fatal(err) }
	if s.Kind() != property.IdentifierKind {
		t.Errorf("Expected an Identifier store, got %s.", s.Kind())
	}

	exp := []int64{ }
	for ix := 0; ix < 2; ix++ {
		for iy := 0; iy < 2; iy++ {
			for iz := 0; iz < 2; iz++ {
				x, y, z := (2 + ix) % gw, iy, (3 + iz) % gw
				exp = append(exp, int64(z + y*gw + x*gw*gw))
			}
		}
	}
	if ids := s.Read().Int64s(); !eq.Slices(ids, exp) {
		t.Errorf("Expected ids %d, got %d.", exp, ids)
	}

	if _, err := f.ReadBlock("phi"); err == nil {
		t.Errorf("Expected a read of a missing block to fail.")
	}
}
