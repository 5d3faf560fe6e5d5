package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/phil-mansfield/nbpipe/lib/cell"
	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/eq"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

func newTestCollection(t *testing.T) (*collection.Collection, *property.Store) {
	pos, err := property.New(property.PositionKind, 3)
	if err != nil { t.Fatal(err) }
	pos.Modify(func(m *property.Mutation) error {
		m.SetVec3s([][3]float64{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}})
		return nil
	})

	coll := collection.New()
	if err := coll.AddProperty(pos); err != nil { t.Fatal(err) }
	coll.SetCell(cell.NewCubic(10, [3]bool{true, true, true}))
	return coll, pos
}

// countingStage returns a stage which records how many times it ran and
// otherwise passes its input through with status st.
func countingStage(name string, calls *int32, st Status) *StageFunc {
	return NewStageFunc(name, func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		atomic.AddInt32(calls, 1)
		return in, st
	})
}

func newTestPipeline(
	t *testing.T, opts ...Option,
) (*Pipeline, *StaticSource, *property.Store) {
	coll, pos := newTestCollection(t)
	src := NewStaticSource(coll)
	p, err := New(src, opts...)
	if err != nil { t.Fatal(err) }
	return p, src, pos
}

func TestCachedResultIdentity(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	ctx := context.Background()
	r1, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }
	r2, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }

	p1, err := r1.Collection.Property(property.PositionKind)
	if err != nil { t.Fatal(err) }
	p2, err := r2.Collection.Property(property.PositionKind)
	if err != nil { t.Fatal(err) }
	if r1.Collection != r2.Collection || p1 != p2 {
		t.Errorf("Expected both evaluations to return the cached collection.")
	}
	if calls != 1 {
		t.Errorf("Expected the stage to run once, it ran %d times.", calls)
	}
	if r1.Status.Kind != Success || len(r1.Statuses) != 1 {
		t.Errorf("Expected one Success status, got %v and %v.",
			r1.Status, r1.Statuses)
	}

	// A different time is a different cache entry.
	if _, err := p.Evaluate(ctx, 1); err != nil { t.Fatal(err) }
	if calls != 2 {
		t.Errorf("Expected a new frame to run the stage again.")
	}
}

func TestMarkChangedInvalidates(t *testing.T) {
	p, _, pos := newTestPipeline(t)
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	ctx := context.Background()
	r1, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }

	pos.MarkChanged()
	r2, err := p.Evaluate(ctx, 0)
	if err != nil { t.Fatal(err) }

	if calls != 2 {
		t.Errorf("Expected MarkChanged to force the stage to rerun; it ran " +
			"%d times.", calls)
	}
	if r1.Collection.Signature() != r2.Collection.Signature() {
		t.Errorf("Expected both handles to see the changed positions.")
	}
	r1.Release()
	r2.Release()
}

func TestParameterChangeInvalidates(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls1, calls2 int32
	s1 := countingStage("first", &calls1, OK())
	s2 := countingStage("second", &calls2, OK())
	p.Append(s1)
	p.Append(s2)

	ctx := context.Background()
	p.Evaluate(ctx, 0)
	s2.Touch()
	p.Evaluate(ctx, 0)
	if calls1 != 1 || calls2 != 2 {
		t.Errorf("Expected touching the second stage to rerun only it; " +
			"calls = %d, %d.", calls1, calls2)
	}

	s1.Touch()
	p.Evaluate(ctx, 0)
	if calls1 != 2 || calls2 != 2 {
		t.Errorf("Expected touching the first stage to rerun it without " +
			"changing the second stage's input; calls = %d, %d.",
			calls1, calls2)
	}
}

func TestStageOutputPropagates(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls int32
	p.Append(NewStageFunc("attr", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		atomic.AddInt32(&calls, 1)
		in.SetAttribute("Frame", float64(t))
		return in, OK()
	}))
	var downstream int32
	p.Append(countingStage("count", &downstream, OK()))

	r, err := p.Evaluate(context.Background(), 7)
	if err != nil { t.Fatal(err) }
	if val, ok := r.Collection.Attribute("Frame"); !ok || val.(float64) != 7 {
		t.Errorf("Expected attribute Frame = 7, got %v.", val)
	}
	if calls != 1 || downstream != 1 {
		t.Errorf("Expected each stage to run once, got %d and %d.",
			calls, downstream)
	}
}

func TestStageErrorNotCached(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls, downstream int32
	p.Append(NewStageFunc("flaky", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return in, Fail("bad input at frame %d", t)
		}
		return in, OK()
	}))
	p.Append(countingStage("count", &downstream, OK()))

	ctx := context.Background()
	_, err := p.Evaluate(ctx, 3)
	var se *g_error.StageError
	if !errors.As(err, &se) || !errors.Is(err, g_error.ErrStage) {
		t.Fatalf("Expected a StageError, got %v.", err)
	}
	if se.Stage != "flaky" || se.Message != "bad input at frame 3" {
		t.Errorf("Expected the stage's message verbatim, got %+v.", se)
	}
	if downstream != 0 {
		t.Errorf("Expected the error to stop the chain.")
	}

	if _, err := p.Evaluate(ctx, 3); err != nil { t.Fatal(err) }
	if calls != 2 || downstream != 1 {
		t.Errorf("Expected the failed stage to run again; calls = %d, %d.",
			calls, downstream)
	}
}

func TestCanceledNotCached(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	p.Append(NewStageFunc("slow", func(
		c context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		if atomic.AddInt32(&calls, 1) == 1 { cancel() }
		return in, OK()
	}))

	_, err := p.Evaluate(ctx, 0)
	if !errors.Is(err, g_error.ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v.", err)
	}
	if errors.Is(err, g_error.ErrStage) {
		t.Errorf("Cancellation was reported as a stage error.")
	}

	if _, err := p.Evaluate(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("Expected a retry after cancellation to rerun the stage.")
	}

	if _, err := p.Evaluate(ctx, 0); !errors.Is(err, g_error.ErrCanceled) {
		t.Errorf("Expected an already-canceled context to fail, got %v.", err)
	}
}

func TestConcurrentEvaluationsShareWork(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var calls int32
	started, release := make(chan struct{ }), make(chan struct{ })
	p.Append(NewStageFunc("blocking", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		if atomic.AddInt32(&calls, 1) == 1 { close(started) }
		<-release
		return in, OK()
	}))

	const n = 8
	results := make([]*Result, n)
	errs := make([]error, n)
	wg := &sync.WaitGroup{ }
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Evaluate(context.Background(), 0)
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil { t.Fatal(errs[i]) }
		got, _ := results[i].Collection.Property(property.PositionKind)
		exp, _ := results[0].Collection.Property(property.PositionKind)
		if got != exp {
			t.Errorf("Evaluation %d returned different positions.", i)
		}
	}
	if calls != 1 {
		t.Errorf("Expected one run of the stage, got %d.", calls)
	}
}

func TestDisabledStagePassesThrough(t *testing.T) {
	p, src, _ := newTestPipeline(t)
	var calls int32
	s := NewStageFunc("attr", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		atomic.AddInt32(&calls, 1)
		in.SetAttribute("Touched", 1)
		return in, OK()
	})
	s.SetEnabled(false)
	p.Append(s)

	r, err := p.Evaluate(context.Background(), 0)
	if err != nil { t.Fatal(err) }
	if _, ok := r.Collection.Attribute("Touched"); ok || calls != 0 {
		t.Errorf("Expected a disabled stage not to run.")
	}
	if r.Collection.Signature() != src.Collection().Signature() {
		t.Errorf("Expected the source's data to pass through unchanged.")
	}

	s.SetEnabled(true)
	r, err = p.Evaluate(context.Background(), 0)
	if err != nil { t.Fatal(err) }
	if _, ok := r.Collection.Attribute("Touched"); !ok || calls != 1 {
		t.Errorf("Expected the re-enabled stage to run.")
	}
}

func TestStageCopyOnWrite(t *testing.T) {
	p, _, pos := newTestPipeline(t)
	p.Append(NewStageFunc("shift", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		s, err := in.MutableProperty(property.PositionKind)
		if err != nil { return in, Fail("%v", err) }
		err = s.Modify(func(m *property.Mutation) error {
			x := m.Float64s()
			for i := range x { x[i] += 100 }
			return nil
		})
		if err != nil { return in, Fail("%v", err) }
		return in, OK()
	}))

	r, err := p.Evaluate(context.Background(), 0)
	if err != nil { t.Fatal(err) }

	out, _ := r.Collection.Property(property.PositionKind)
	if out == pos {
		t.Fatalf("Expected the stage to write to a private copy.")
	}
	if !eq.Vec64Eps(out.Read().Vec3(0), [3]float64{101, 101, 101}, 1e-12) {
		t.Errorf("Expected shifted output, got %v.", out.Read().Vec3(0))
	}
	if !eq.Vec64Eps(pos.Read().Vec3(0), [3]float64{1, 1, 1}, 0) {
		t.Errorf("The stage changed the source's positions to %v.",
			pos.Read().Vec3(0))
	}
}

func TestWarningPropagates(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	var c1, c2 int32
	p.Append(countingStage("warn", &c1, Warn("only %d particles", 3)))
	p.Append(countingStage("ok", &c2, OK()))

	for i := 0; i < 2; i++ {
		r, err := p.Evaluate(context.Background(), 0)
		if err != nil { t.Fatal(err) }
		if r.Status.Kind != Warning || r.Status.Message != "only 3 particles" {
			t.Errorf("%d) Expected the warning to propagate, got %v.",
				i, r.Status)
		}
		if r.Statuses[0].Kind != Warning || r.Statuses[1].Kind != Success {
			t.Errorf("%d) Unexpected per-stage statuses %v.", i, r.Statuses)
		}
	}
	if c1 != 1 {
		t.Errorf("Expected the warning result to be cached.")
	}
}

type pendingSource struct {
	loads int32
}

func (s *pendingSource) Stamp(t Time) (uint64, error) { return 1, nil }

func (s *pendingSource) Load(
	ctx context.Context, t Time,
) (*collection.Collection, Status, error) {
	atomic.AddInt32(&s.loads, 1)
	return nil, Wait("frame %d is still being written", t), nil
}

func TestPendingSourceNotCached(t *testing.T) {
	src := &pendingSource{ }
	p, err := New(src)
	if err != nil { t.Fatal(err) }
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	for i := 0; i < 2; i++ {
		r, err := p.Evaluate(context.Background(), 0)
		if err != nil { t.Fatal(err) }
		if r.Status.Kind != Pending || r.Collection != nil {
			t.Errorf("%d) Expected a Pending result, got %v.", i, r.Status)
		}
	}
	if src.loads != 2 || calls != 0 {
		t.Errorf("Expected two loads and no stage runs, got %d and %d.",
			src.loads, calls)
	}
}

func TestInvalidateReleases(t *testing.T) {
	p, _, pos := newTestPipeline(t)
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	r, err := p.Evaluate(context.Background(), 0)
	if err != nil { t.Fatal(err) }
	// The source, the cached source output, the cached stage output and the
	// result.
	if pos.References() != 4 {
		t.Errorf("Expected 4 references to the positions, got %d.",
			pos.References())
	}
	r.Release()
	if pos.References() != 3 {
		t.Errorf("Expected releasing the result to leave 3 references, " +
			"got %d.", pos.References())
	}
	r, _ = p.Evaluate(context.Background(), 0)
	r.Release()
	if pos.References() != 3 {
		t.Errorf("Expected a cache hit to leave 3 references, got %d.",
			pos.References())
	}

	p.Invalidate()
	if pos.References() != 1 {
		t.Errorf("Expected Invalidate to release cached collections; %d " +
			"references remain.", pos.References())
	}
	p.Evaluate(context.Background(), 0)
	if calls != 2 {
		t.Errorf("Expected Invalidate to force a rerun.")
	}
}

func TestResultOutlivesEviction(t *testing.T) {
	p, _, pos := newTestPipeline(t, CacheSize(1))
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	r0, err := p.Evaluate(context.Background(), 0)
	if err != nil { t.Fatal(err) }
	r1, err := p.Evaluate(context.Background(), 1)
	if err != nil { t.Fatal(err) }

	// The source, two cached entries for frame 1 and both results.
	if pos.References() != 5 {
		t.Errorf("Expected 5 references after eviction, got %d.",
			pos.References())
	}
	if r0.Collection.ParticleCount() != 3 {
		t.Errorf("Expected the evicted result to stay readable.")
	}
	if err := r0.Collection.Validate(); err != nil { t.Error(err) }

	r0.Release()
	r0.Release()
	r1.Release()
	if pos.References() != 3 {
		t.Errorf("Expected 3 references after releasing the results, got %d.",
			pos.References())
	}
}

func TestStageMessageVerbatim(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.Append(NewStageFunc("percent", func(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status) {
		return in, Fail("%v", errors.New("over 50% of particles %d lost"))
	}))

	_, err := p.Evaluate(context.Background(), 0)
	var se *g_error.StageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected a StageError, got %v.", err)
	}
	if se.Message != "over 50% of particles %d lost" {
		t.Errorf("Expected the message verbatim, got '%s'.", se.Message)
	}
}

func TestCacheEviction(t *testing.T) {
	p, _, _ := newTestPipeline(t, CacheSize(1))
	var calls int32
	p.Append(countingStage("count", &calls, OK()))

	for _, frame := range []Time{ 0, 1, 0, 0 } {
		if _, err := p.Evaluate(context.Background(), frame); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 3 {
		t.Errorf("Expected 3 runs with a cache size of 1, got %d.", calls)
	}

	if _, err := New(NewStaticSource(collection.New()), CacheSize(0));
		err == nil {
		t.Errorf("Expected a cache size of 0 to be rejected.")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil { t.Fatal(err) }

	p, _, _ := newTestPipeline(t, WithMetrics(m))
	var calls int32
	p.Append(countingStage("count", &calls, OK()))
	p.Append(countingStage("fail", &calls, Fail("no")))

	p.Evaluate(context.Background(), 0)
	p.Evaluate(context.Background(), 0)

	tests := []struct{
		name string
		got, exp float64
	} {
		{"hits", testutil.ToFloat64(m.CacheHits.WithLabelValues("count")), 1},
		{"misses", testutil.ToFloat64(m.CacheMisses.WithLabelValues("count")), 1},
		{"source misses",
			testutil.ToFloat64(m.CacheMisses.WithLabelValues("source")), 1},
		{"errors", testutil.ToFloat64(m.StageErrors.WithLabelValues("fail")), 2},
	}
	for _, test := range tests {
		if test.got != test.exp {
			t.Errorf("Expected %s = %g, got %g.", test.name, test.exp, test.got)
		}
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Errorf("Expected registering the metrics twice to fail.")
	}
}
