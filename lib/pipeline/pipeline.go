package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
)

// DefaultCacheSize is the number of results each stage keeps by default.
const DefaultCacheSize = 4

type cacheKey struct {
	sig uint64
	t Time
}

type entry struct {
	coll *collection.Collection
	status Status
	// evicted is set, under Pipeline.mu, once the cache has released coll.
	evicted bool
}

type cache = lru.Cache[cacheKey, *entry]

// Option configures a Pipeline.
type Option func(*Pipeline)

// CacheSize sets the number of results each stage keeps, one per distinct
// input and time.
func CacheSize(n int) Option { return func(p *Pipeline) { p.cacheSize = n } }

// WithMetrics makes the pipeline report to m.
func WithMetrics(m *Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// Pipeline is a Source followed by an ordered list of stages. Evaluate may be
// called from any number of goroutines.
type Pipeline struct {
	source Source
	cacheSize int
	metrics *Metrics

	// mu protects stages and caches, and is held around every cache
	// operation that can evict an entry so that taking a reference to a
	// cached collection can't race with its release.
	mu sync.Mutex
	stages []Stage
	caches []*cache
	sourceCache *cache

	flight singleflight.Group
}

// Result is the outcome of an evaluation.
type Result struct {
	// Collection is the final output. It is the cached collection itself,
	// so evaluating the same frame again with nothing changed returns the
	// same pointer. It must be treated as read-only: clone it before making
	// changes. It stays readable after the cache evicts or invalidates it,
	// until Release is called. It is nil when Status is Pending.
	Collection *collection.Collection
	// Status is the worst status reported by the source or any stage.
	Status Status
	// Statuses holds one status per stage, in order. Disabled stages report
	// Success.
	Statuses []Status

	// held owns one reference to every object in Collection.
	held *collection.Collection
}

// Release drops the result's references to its objects. Calling it more than
// once has no further effect.
func (r *Result) Release() {
	if r.held != nil { r.held.Release() }
}

// New creates a pipeline with no stages reading from src.
func New(src Source, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{ source: src, cacheSize: DefaultCacheSize }
	for _, opt := range opts { opt(p) }

	if src == nil {
		return nil, fmt.Errorf("pipeline source: %w", g_error.ErrMissingInput)
	}
	var err error
	if p.sourceCache, err = p.newCache(); err != nil { return nil, err }
	return p, nil
}

func (p *Pipeline) newCache() (*cache, error) {
	if p.cacheSize < 1 {
		return nil, fmt.Errorf("The pipeline cache size is %d, but must be " +
			"at least 1.", p.cacheSize)
	}
	return lru.NewWithEvict[cacheKey, *entry](p.cacheSize,
		func(_ cacheKey, e *entry) {
			e.evicted = true
			e.coll.Release()
		})
}

// Append adds a stage to the end of the pipeline.
func (p *Pipeline) Append(st Stage) error {
	c, err := p.newCache()
	if err != nil { return err }

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, st)
	p.caches = append(p.caches, c)
	return nil
}

// Stages returns the stages in evaluation order.
func (p *Pipeline) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Stage{ }, p.stages...)
}

func (p *Pipeline) Source() Source { return p.source }

// Invalidate drops every cached result.
func (p *Pipeline) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceCache.Purge()
	for _, c := range p.caches { c.Purge() }
}

// Evaluate returns the output of the pipeline at time t. Stages whose cached
// output is still valid are not run again. The caller must Release the
// result.
//
// A stage which reports an Error status stops the evaluation and is returned
// as a *StageError. If ctx is canceled, evaluation stops with an error
// wrapping ErrCanceled. Neither failed nor canceled runs leave anything in
// the cache, so retrying runs the stage again.
func (p *Pipeline) Evaluate(ctx context.Context, t Time) (*Result, error) {
	p.mu.Lock()
	stages := append([]Stage{ }, p.stages...)
	caches := append([]*cache{ }, p.caches...)
	p.mu.Unlock()

	enabled := make([]bool, len(stages))
	last := -1
	for i, st := range stages {
		enabled[i] = st.Enabled()
		if enabled[i] { last = i }
	}

	if err := ctx.Err(); err != nil {
		return nil, g_error.Canceled("pipeline evaluation", err)
	}

	stamp, err := p.source.Stamp(t)
	if err != nil {
		return nil, fmt.Errorf("Could not stamp the source at frame %d: %w",
			t, err)
	}

	res := &Result{ Statuses: make([]Status, len(stages)) }
	e, work, err := p.load(ctx, t, stamp, true)
	if err != nil { return nil, err }
	res.Status = e.status
	if e.status.Kind == Pending { return res, nil }

	for i := 0; i <= last; i++ {
		if !enabled[i] { continue }
		if err := ctx.Err(); err != nil {
			work.Release()
			return nil, g_error.Canceled("pipeline evaluation", err)
		}

		e, work, err = p.run(ctx, i, stages[i], caches[i], t, work, true)
		if err != nil { return nil, err }

		res.Statuses[i] = e.status
		res.Status = res.Status.Worse(e.status)
		if e.status.Kind == Pending { return res, nil }
	}

	res.Collection, res.held = e.coll, work
	if glog.V(1) {
		glog.Infof("Evaluated frame %d through %d stages: %s.",
			t, len(stages), res.Status)
	}
	return res, nil
}

// load returns the source's collection at time t.
func (p *Pipeline) load(
	ctx context.Context, t Time, stamp uint64, wantPin bool,
) (*entry, *collection.Collection, error) {
	key := cacheKey{ stamp, t }
	flightKey := fmt.Sprintf("source/%x/%d", stamp, t)

	return p.produce("source", flightKey, p.sourceCache, key, wantPin,
		func() (*entry, error) {
			start := time.Now()
			coll, status, err := p.source.Load(ctx, t)
			p.metrics.observe("source", time.Since(start).Seconds())

			if ctxErr := ctx.Err(); ctxErr != nil {
				if coll != nil { coll.Release() }
				p.metrics.canceled("source")
				return nil, g_error.Canceled("loading the source", ctxErr)
			}
			switch {
			case err != nil:
				p.metrics.failed("source")
				return nil, fmt.Errorf("Could not load frame %d: %w", t, err)
			case status.Kind == Error:
				if coll != nil { coll.Release() }
				p.metrics.failed("source")
				return nil, &g_error.StageError{
					Stage: "source", Message: status.Message,
				}
			case coll == nil && status.Kind != Pending:
				p.metrics.failed("source")
				return nil, &g_error.StageError{
					Stage: "source", Message: "the source returned no data",
				}
			}
			return &entry{ coll: coll, status: status }, nil
		})
}

// run returns the output of stage i given the input in. run takes over the
// caller's reference to in.
func (p *Pipeline) run(
	ctx context.Context, i int, st Stage, c *cache, t Time,
	in *collection.Collection, wantPin bool,
) (*entry, *collection.Collection, error) {
	key := cacheKey{ stageKey(in.Signature(), st.Revision(), st.Enabled()), t }
	flightKey := fmt.Sprintf("stage/%d/%x/%d", i, key.sig, t)

	consumed := false
	e, pinned, err := p.produce(st.Name(), flightKey, c, key, wantPin,
		func() (*entry, error) {
			consumed = true
			return p.apply(ctx, st, t, in)
		})
	if !consumed { in.Release() }
	return e, pinned, err
}

// stageKey combines a stage's input signature with its parameters.
func stageKey(sig, revision uint64, enabled bool) uint64 {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:8], sig)
	binary.LittleEndian.PutUint64(buf[8:16], revision)
	if enabled { buf[16] = 1 }
	return xxhash.Sum64(buf)
}

// apply runs a stage on its private input.
func (p *Pipeline) apply(
	ctx context.Context, st Stage, t Time, in *collection.Collection,
) (*entry, error) {
	name := st.Name()
	start := time.Now()
	out, status := st.Apply(ctx, t, in)
	p.metrics.observe(name, time.Since(start).Seconds())
	if out != in { in.Release() }

	if err := ctx.Err(); err != nil {
		if out != nil { out.Release() }
		p.metrics.canceled(name)
		return nil, g_error.Canceled(fmt.Sprintf("stage '%s'", name), err)
	}
	switch {
	case status.Kind == Error:
		if out != nil { out.Release() }
		p.metrics.failed(name)
		return nil, &g_error.StageError{ Stage: name, Message: status.Message }
	case out == nil:
		p.metrics.failed(name)
		return nil, &g_error.StageError{
			Stage: name, Message: "the stage returned no collection",
		}
	}

	if glog.V(2) {
		glog.Infof("Stage '%s' ran in %s: %s.", name, time.Since(start),
			status)
	}
	return &entry{ coll: out, status: status }, nil
}

// produce returns the entry for key, calling f to compute it on a miss.
// Concurrent callers with the same flightKey share one call of f. If wantPin
// is true, it also returns a new clone of the entry's collection, taken
// before the entry can be evicted.
func (p *Pipeline) produce(
	name, flightKey string, c *cache, key cacheKey, wantPin bool,
	f func() (*entry, error),
) (*entry, *collection.Collection, error) {
	for {
		if e, pinned, ok := p.lookup(c, key, wantPin); ok {
			p.metrics.hit(name)
			if glog.V(2) { glog.Infof("Cache hit for '%s'.", name) }
			return e, pinned, nil
		}

		leader := false
		var leaderPin *collection.Collection
		v, err, _ := p.flight.Do(flightKey, func() (interface{}, error) {
			leader = true
			if e, pinned, ok := p.lookup(c, key, wantPin); ok {
				leaderPin = pinned
				return e, nil
			}

			p.metrics.miss(name)
			e, err := f()
			if err != nil { return nil, err }

			if e.status.Kind == Pending {
				if e.coll != nil { e.coll.Release() }
				e.coll = nil
				return e, nil
			}

			p.mu.Lock()
			defer p.mu.Unlock()
			c.Add(key, e)
			if wantPin { leaderPin = e.coll.Clone() }
			return e, nil
		})
		if err != nil {
			// A follower shouldn't inherit another caller's cancellation.
			if !leader && errors.Is(err, g_error.ErrCanceled) { continue }
			return nil, nil, err
		}

		e := v.(*entry)
		if leader || e.status.Kind == Pending { return e, leaderPin, nil }
		if pinned, ok := p.pin(e, wantPin); ok { return e, pinned, nil }
		// The entry was evicted before this caller could pin it. Try again.
	}
}

// lookup returns a cached entry and, if wantPin is true, a clone of its
// collection.
func (p *Pipeline) lookup(
	c *cache, key cacheKey, wantPin bool,
) (*entry, *collection.Collection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := c.Get(key)
	if !ok { return nil, nil, false }
	if !wantPin { return e, nil, true }
	return e, e.coll.Clone(), true
}

// pin clones the collection of an entry that is still cached. Without
// wantPin, it always succeeds.
func (p *Pipeline) pin(e *entry, wantPin bool) (*collection.Collection, bool) {
	if !wantPin { return nil, true }
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.evicted { return nil, false }
	return e.coll.Clone(), true
}
