package snapio

import (
	"encoding/binary"
	"fmt"

	"github.com/phil-mansfield/gotetra/render/geom"
	"github.com/phil-mansfield/gotetra/render/io"

	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Sheet is an implementation of the File interface for gotetra sheet
// segments. A sheet file holds one cubic segment of the Lagrangian particle
// grid. It has positions and velocities but no IDs, so IDs are generated from
// the segment's location in the full grid with a z-major ordering.
type Sheet struct {
	fileName string
	origin [3]int
	order *ZMajorUnigrid
	// sw is the segment width and gw is the padded width stored on disk.
	sw, gw int
	hd *Header
}

var (
	_ File = &Sheet{ }

	sheetBlocks = []BlockSpec{ { "x", V32 }, { "v", V32 }, { "id", U64 } }
)

// NewSheet opens a sheet file. origin is the 3-index of the segment's first
// particle within the full grid and gridWidth is the number of particles on
// each side of the full grid.
func NewSheet(fileName string, origin [3]int, gridWidth int) (*Sheet, error) {
	if gridWidth <= 0 {
		return nil, fmt.Errorf("The sheet grid width is %d, but must be " +
			"positive.", gridWidth)
	}

	raw := &io.SheetHeader{ }
	if err := io.ReadSheetHeaderAt(fileName, raw); err != nil {
		return nil, fmt.Errorf("Could not read the sheet header of %s: %w",
			fileName, err)
	}
	gw, sw := int(raw.GridWidth), int(raw.SegmentWidth)
	if sw > gridWidth {
		return nil, fmt.Errorf("The sheet %s has segment width %d, which " +
			"is larger than the grid width %d.", fileName, sw, gridWidth)
	}

	// Sheet files are always little-endian.
	hd := &Header{
		Order: binary.LittleEndian, Blocks: sheetBlocks,
		N: sw*sw*sw,
		NTot: int64(gridWidth)*int64(gridWidth)*int64(gridWidth),
		Cosmology: Cosmology{
			Z: raw.Cosmo.Z, OmegaM: raw.Cosmo.OmegaM,
			OmegaL: raw.Cosmo.OmegaL, H100: raw.Cosmo.H100,
		},
		L: raw.TotalWidth, Mass: raw.Mass,
	}

	return &Sheet{
		fileName: fileName, origin: origin,
		order: NewZMajorUnigrid(gridWidth), sw: sw, gw: gw, hd: hd,
	}, nil
}

func (f *Sheet) Header() *Header { return f.hd }

func (f *Sheet) ReadBlock(name string) (*property.Store, error) {
	i := findBlock(sheetBlocks, name)
	if i == -1 {
		return nil, fmt.Errorf("Sheet files have no block named '%s'. The " +
			"blocks are %s.", name, blockNames(sheetBlocks))
	}
	s, err := sheetBlocks[i].newStore(f.hd.N)
	if err != nil { return nil, err }

	if name == "id" {
		err = s.Modify(func(m *property.Mutation) error {
			f.eachParticle(func(i int, idx [3]int) {
				m.SetInt(i, 0, int64(f.order.IndexToID(idx)))
			})
			return nil
		})
		if err != nil { return nil, err }
		return s, nil
	}

	xg := make([]geom.Vec, f.gw*f.gw*f.gw)
	if name == "x" {
		err = io.ReadSheetPositionsAt(f.fileName, xg)
	} else {
		err = io.ReadSheetVelocitiesAt(f.fileName, xg)
	}
	if err != nil {
		return nil, fmt.Errorf("Could not read the '%s' block of %s: %w",
			name, f.fileName, err)
	}

	err = s.Modify(func(m *property.Mutation) error {
		f.eachParticle(func(i int, idx [3]int) {
			ig := idx[2] - f.origin[2] + (idx[1] - f.origin[1])*f.gw +
				(idx[0] - f.origin[0])*f.gw*f.gw
			m.SetVec3(i, [3]float64{
				float64(xg[ig][0]), float64(xg[ig][1]), float64(xg[ig][2]),
			})
		})
		return nil
	})
	if err != nil { return nil, err }
	return s, nil
}

// eachParticle calls fn on every particle of the segment in z-major order
// along with the particle's 3-index within the full grid.
func (f *Sheet) eachParticle(fn func(i int, idx [3]int)) {
	sw := f.sw
	for ix := 0; ix < sw; ix++ {
		for iy := 0; iy < sw; iy++ {
			for iz := 0; iz < sw; iz++ {
				fn(iz + iy*sw + ix*sw*sw, [3]int{
					f.origin[0] + ix, f.origin[1] + iy, f.origin[2] + iz,
				})
			}
		}
	}
}
