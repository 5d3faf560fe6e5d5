package snapio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/format"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
)

// Attribute names set by FileSource.
const (
	SourceFrameAttribute = "SourceFrame"
	SourceFileAttribute = "SourceFile"
)

// Opener opens a single snapshot file.
type Opener func(fileName string) (File, error)

// Gadget2Opener returns an Opener for Gadget-2 files of the given variant
// with the given blocks.
func Gadget2Opener(
	variant Gadget2Variant, blocks []BlockSpec, order binary.ByteOrder,
) Opener {
	return func(fileName string) (File, error) {
		return OpenGadget2(fileName, variant, blocks, order)
	}
}

// FileSource is a pipeline source which reads one snapshot file per frame.
// Pipeline time t is the index into the frame list. A file which doesn't
// exist yet gives a Pending status, and a file which changes on disk gives a
// new stamp.
type FileSource struct {
	format *format.FileFormatComponents
	frames []int
	open Opener
}

var _ pipeline.Source = &FileSource{ }

// NewFileSource creates a source from a file format string (see package
// format) and a list of frames.
func NewFileSource(
	fileFormat string, frames []int, open Opener,
) (*FileSource, error) {
	comp, err := format.NewFileFormatComponents(fileFormat)
	if err != nil { return nil, err }
	if len(frames) == 0 {
		return nil, fmt.Errorf("No frames were given for the input files " +
			"'%s'.", fileFormat)
	}
	return &FileSource{ format: comp, frames: frames, open: open }, nil
}

// Frames returns the number of frames.
func (s *FileSource) Frames() int { return len(s.frames) }

// FileName returns the name of the file read at time t.
func (s *FileSource) FileName(t pipeline.Time) (string, error) {
	if int(t) < 0 || int(t) >= len(s.frames) {
		return "", fmt.Errorf("Time %d is outside the %d frames: %w",
			t, len(s.frames), g_error.ErrIndexOutOfRange)
	}
	return s.format.Expand(s.frames[t]), nil
}

func (s *FileSource) Stamp(t pipeline.Time) (uint64, error) {
	fileName, err := s.FileName(t)
	if err != nil { return 0, err }

	d := xxhash.New()
	d.WriteString(fileName)
	info, err := os.Stat(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		d.WriteString("missing")
		return d.Sum64(), nil
	} else if err != nil {
		return 0, err
	}

	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(b[8:], uint64(info.ModTime().UnixNano()))
	d.Write(b[:])
	return d.Sum64(), nil
}

func (s *FileSource) Load(
	ctx context.Context, t pipeline.Time,
) (*collection.Collection, pipeline.Status, error) {
	fileName, err := s.FileName(t)
	if err != nil { return nil, pipeline.Status{ }, err }

	if _, err := os.Stat(fileName); errors.Is(err, fs.ErrNotExist) {
		return nil, pipeline.Wait("Waiting for %s to be written.",
			fileName), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, pipeline.Status{ }, g_error.Canceled("file load", err)
	}

	f, err := s.open(fileName)
	if err != nil { return nil, pipeline.Status{ }, err }
	coll, err := ReadCollection(f)
	if err != nil { return nil, pipeline.Status{ }, err }

	err = coll.SetAttribute(SourceFrameAttribute, s.frames[t])
	if err == nil { err = coll.SetAttribute(SourceFileAttribute, fileName) }
	if err != nil {
		coll.Release()
		return nil, pipeline.Status{ }, err
	}

	return coll, pipeline.OK(), nil
}
