/*package config reads nbpipe's config files. Config files are INI-style files
with a single [nbpipe] section; run "nbpipe example_config" to see every
variable and its documentation.
*/
package config

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/nbpipe/lib/compress"
	"github.com/phil-mansfield/nbpipe/lib/format"
	"github.com/phil-mansfield/nbpipe/lib/snapio"
	"github.com/phil-mansfield/nbpipe/lib/stages"
)

// Config holds the variables of the [nbpipe] section.
type Config struct {
	Format, Input, Frames, Output, Compression, Metrics string
	Stages string

	Threads, CacheSize, Neighbors int
	Cutoff, Softening float64

	Gadget2Blocks, Gadget2Types, ByteOrder string

	SheetOrigin string
	SheetGridWidth int
}

type configFile struct {
	Nbpipe Config
}

// Default returns the config used for variables a file doesn't set.
func Default() *Config {
	return &Config{
		Format: "gadget2", Compression: "zstd",
		Threads: -1, CacheSize: 8, Neighbors: 12,
		Cutoff: 1.0, Softening: 0.01,
		Gadget2Blocks: "x, v, id", Gadget2Types: "v32, v32, u64",
		ByteOrder: "little", SheetOrigin: "0, 0, 0", SheetGridWidth: -1,
	}
}

// Read reads the config file fileName on top of the defaults.
func Read(fileName string) (*Config, error) {
	file := &configFile{ *Default() }
	if err := gcfg.ReadFileInto(file, fileName); err != nil {
		return nil, fmt.Errorf("Could not read config file, '%s': %s",
			fileName, err.Error())
	}
	return &file.Nbpipe, nil
}

// ReadString reads a config from a string on top of the defaults.
func ReadString(text string) (*Config, error) {
	file := &configFile{ *Default() }
	if err := gcfg.ReadStringInto(file, text); err != nil {
		return nil, err
	}
	return &file.Nbpipe, nil
}

// Check returns an error describing the first invalid variable. It doesn't
// look at any files.
func (c *Config) Check() error {
	switch c.Format {
	case "gadget2", "lgadget2":
		if _, err := c.Blocks(); err != nil { return err }
		if _, err := c.Order(); err != nil { return err }
	case "sheet":
		if c.SheetGridWidth <= 0 {
			return fmt.Errorf("SheetGridWidth must be set to a positive " +
				"value for sheet files, but is %d.", c.SheetGridWidth)
		}
		if _, err := c.Origin(); err != nil { return err }
	default:
		return fmt.Errorf("Format is '%s', but the only valid formats are " +
			"'gadget2', 'lgadget2', and 'sheet'.", c.Format)
	}

	if c.Input == "" {
		return fmt.Errorf("Input must be set.")
	} else if _, err := format.NewFileFormatComponents(c.Input); err != nil {
		return err
	} else if _, err := c.FrameList(); err != nil {
		return err
	}
	if c.Output != "" {
		if _, err := format.NewFileFormatComponents(c.Output); err != nil {
			return err
		}
	}
	if _, err := compress.MethodByName(c.Compression); err != nil {
		return err
	}

	switch {
	case c.CacheSize < 1:
		return fmt.Errorf("CacheSize is %d, but must be at least 1.",
			c.CacheSize)
	case !(c.Cutoff > 0):
		return fmt.Errorf("Cutoff is %g, but must be positive.", c.Cutoff)
	case c.Neighbors < 1:
		return fmt.Errorf("Neighbors is %d, but must be at least 1.",
			c.Neighbors)
	case !(c.Softening > 0):
		return fmt.Errorf("Softening is %g, but must be positive.",
			c.Softening)
	}

	for _, name := range c.StageNames() {
		if _, err := stages.New(name, c.Cutoff, c.Softening,
			c.Neighbors); err != nil {
			return err
		}
	}
	return nil
}

// FrameList expands Frames.
func (c *Config) FrameList() ([]int, error) {
	return format.ExpandFrameFormat(c.Frames)
}

// StageNames returns the stages in the order they're applied.
func (c *Config) StageNames() []string { return splitList(c.Stages) }

// Blocks returns the Gadget-2 blocks.
func (c *Config) Blocks() ([]snapio.BlockSpec, error) {
	blocks, err := snapio.ParseBlocks(
		splitList(c.Gadget2Blocks), splitList(c.Gadget2Types),
	)
	if err != nil {
		return nil, fmt.Errorf("Gadget2Blocks and Gadget2Types: %w", err)
	}
	return blocks, nil
}

// Variant returns the Gadget-2 header layout used by the input files.
func (c *Config) Variant() snapio.Gadget2Variant {
	if c.Format == "lgadget2" { return snapio.LGadget2 }
	return snapio.Gadget2Cosmological
}

// Order returns the byte order of Gadget-2 files.
func (c *Config) Order() (binary.ByteOrder, error) {
	switch strings.ToLower(c.ByteOrder) {
	case "little": return binary.LittleEndian, nil
	case "big": return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("ByteOrder is '%s', but must be 'little' or " +
		"'big'.", c.ByteOrder)
}

// Origin returns the grid index of a sheet file's first particle.
func (c *Config) Origin() ([3]int, error) {
	tok := splitList(c.SheetOrigin)
	origin := [3]int{ }
	if len(tok) != 3 {
		return origin, fmt.Errorf("SheetOrigin is '%s', but must have " +
			"three comma-separated integers.", c.SheetOrigin)
	}
	for i := range tok {
		x, err := strconv.Atoi(tok[i])
		if err != nil {
			return origin, fmt.Errorf("SheetOrigin is '%s', but '%s' is " +
				"not an integer.", c.SheetOrigin, tok[i])
		}
		origin[i] = x
	}
	return origin, nil
}

// splitList splits a comma-separated list and drops empty elements.
func splitList(s string) []string {
	out := []string{ }
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" { out = append(out, tok) }
	}
	return out
}

// Example is an example config file documenting every variable.
const Example = `[nbpipe]

#####################
## Input variables ##
#####################

# Format is the format of the input files. The supported formats are gadget2,
# lgadget2, and sheet (gotetra sheet segments).
Format = gadget2

# Input is a format string giving the location of the input files. Variables
# are written in braces as {verb,rule}, where verb is a printf verb like %03d
# and the only rule is "frame", the number of the snapshot being read.
Input = path/to/snapdir_{%03d,frame}/snapshot_{%03d,frame}

# Frames is the list of snapshots to process. 0..100 enumerates every
# snapshot in [0, 100]. Individual snapshots or ranges can be added with "+"
# and removed with "-". The example below skips a corrupted snapshot, 63.
Frames = 0..100 - 63

# Gadget2Blocks and Gadget2Types give the names and types of the blocks in
# Gadget-2 files, in order. Types are u32, u64, f32, f64, v32, and v64. The
# blocks x, v, id, and phi become the Position, Velocity, Identifier, and
# Potential Energy properties; other blocks keep their names.
Gadget2Blocks = x, v, id
Gadget2Types = v32, v32, u64

# ByteOrder is the byte order of Gadget-2 files, little or big.
ByteOrder = little

# SheetOrigin and SheetGridWidth locate a sheet segment within the full
# particle grid and are only used by the sheet format.
# SheetOrigin = 0, 0, 0
# SheetGridWidth = 1024

######################
## Pipeline options ##
######################

# Stages is the list of stages applied to every frame, in order. The stages
# are coordination, create_bonds, bond_lengths, nearest_distance, wrap,
# delete_selected, and potential.
Stages = wrap, coordination, create_bonds, bond_lengths

# Cutoff is the neighbor cutoff radius used by coordination and create_bonds.
Cutoff = 1.0

# Neighbors is the number of neighbors used by nearest_distance.
Neighbors = 12

# Softening is the force softening length used by potential.
Softening = 0.01

# CacheSize is the number of frames each stage keeps cached.
CacheSize = 8

# Threads is the number of threads used. -1 uses every core.
Threads = -1

######################
## Output variables ##
######################

# Output is a format string giving where compressed results are written.
# Leave it unset to skip writing.
Output = path/to/out/frame_{%03d,frame}.nbp

# Compression is the method used for output files, zstd or zlib.
Compression = zstd

# Metrics is a file that the pipeline's prometheus metrics are written to
# after the run. Leave it unset to skip writing.
# Metrics = path/to/nbpipe.prom
`
