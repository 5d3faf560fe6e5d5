package snapio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

func newTestSource(t *testing.T) (*FileSource, string) {
	dir := t.TempDir()
	src, err := NewFileSource(filepath.Join(dir, "snap_{%03d,frame}"),
		[]int{ 3, 7 }, Gadget2Opener(Gadget2Cosmological, testBlocks, order))
	if err != nil { t.Fatal(err) }
	return src, dir
}

func TestFileSourceNames(t *testing.T) {
	src, dir := newTestSource(t)

	if n := src.Frames(); n != 2 {
		t.Errorf("Expected 2 frames, got %d.", n)
	}
	name, err := src.FileName(1)
	if err != nil { t.Fatal(err) }
	if exp := filepath.Join(dir, "snap_007"); name != exp {
		t.Errorf("Expected FileName(1) = %s, got %s.", exp, name)
	}

	for _, tm := range []pipeline.Time{ -1, 2 } {
		_, err := src.FileName(tm)
		if !errors.Is(err, g_error.ErrIndexOutOfRange) {
			t.Errorf("Expected time %d to be out of range, got %v.", tm, err)
		}
		if _, err := src.Stamp(tm); err == nil {
			t.Errorf("Expected Stamp(%d) to fail.", tm)
		}
	}

	if _, err := NewFileSource("snap_{%03d,frame}", nil,
		Gadget2Opener(Gadget2Cosmological, testBlocks, order)); err == nil {
		t.Errorf("Expected a source without frames to fail.")
	}
	if _, err := NewFileSource("snap_{%03d,time}", []int{ 0 },
		Gadget2Opener(Gadget2Cosmological, testBlocks, order)); err == nil {
		t.Errorf("Expected a source with a bad format to fail.")
	}
}

func TestFileSourceStamp(t *testing.T) {
	src, dir := newTestSource(t)

	missing, err := src.Stamp(0)
	if err != nil { t.Fatal(err) }
	other, err := src.Stamp(1)
	if err != nil { t.Fatal(err) }
	if missing == other {
		t.Errorf("Expected different files to have different stamps.")
	}

	fileName := filepath.Join(dir, "snap_003")
	writeGadget2To(t, fileName, Gadget2Cosmological, 0)
	written, err := src.Stamp(0)
	if err != nil { t.Fatal(err) }
	if written == missing {
		t.Errorf("Expected writing the file to change its stamp.")
	}
	again, _ := src.Stamp(0)
	if again != written {
		t.Errorf("Expected the stamp of an unchanged file to be stable.")
	}

	writeGadget2To(t, fileName, Gadget2Cosmological, 16)
	if rewritten, _ := src.Stamp(0); rewritten == written {
		t.Errorf("Expected rewriting the file to change its stamp.")
	}
}

func TestFileSourcePipeline(t *testing.T) {
	src, dir := newTestSource(t)
	p, err := pipeline.New(src)
	if err != nil { t.Fatal(err) }

	var calls int
	p.Append(pipeline.NewStageFunc("count", func(
		ctx context.Context, tm pipeline.Time, in *collection.Collection,
	) (*collection.Collection, pipeline.Status) {
		calls++
		return in, pipeline.OK()
	}))

	ctx := context.Background()
	r, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }
	if r.Status.Kind != pipeline.Pending || r.Collection != nil {
		t.Errorf("Expected a Pending result for a missing file, got %v.",
			r.Status)
	}
	if calls != 0 {
		t.Errorf("Expected no stages to run on a Pending source.")
	}

	writeGadget2To(t, filepath.Join(dir, "snap_003"), Gadget2Cosmological, 0)
	r1, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }
	if r1.Status.Kind != pipeline.Success {
		t.Fatalf("Expected Success, got %v.", r1.Status)
	}
	if n := r1.Collection.ParticleCount(); n != len(testID) {
		t.Errorf("Expected %d particles, got %d.", len(testID), n)
	}
	if frame, _ := r1.Collection.Attribute(SourceFrameAttribute); frame != 3.0 {
		t.Errorf("Expected SourceFrame = 3, got %v.", frame)
	}
	name, _ := r1.Collection.Attribute(SourceFileAttribute)
	if name != filepath.Join(dir, "snap_003") {
		t.Errorf("Expected SourceFile = snap_003, got %v.", name)
	}

	r2, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }
	p1, _ := r1.Collection.Property(property.PositionKind)
	p2, _ := r2.Collection.Property(property.PositionKind)
	if p1 == nil || p1 != p2 || calls != 1 {
		t.Errorf("Expected an unchanged file to be served from the cache.")
	}

	writeGadget2To(t, filepath.Join(dir, "snap_003"), Gadget2Cosmological, 8)
	r1.Release()
	r2.Release()
	r3, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }
	defer r3.Release()
	if calls != 2 {
		t.Errorf("Expected a rewritten file to rerun the stage.")
	}
}
