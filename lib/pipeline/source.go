package pipeline

import (
	"context"
	"sync"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
)

// Source supplies the collection at the head of a pipeline.
//
// Stamp returns a revision stamp for the data at time t. It must change
// whenever the data Load would return changes, and the pipeline reloads and
// reevaluates every stage when it does. Load returns a collection owned by
// the caller. A Pending status means the data isn't available yet; the
// result is handed back without being cached.
type Source interface {
	Stamp(t Time) (uint64, error)
	Load(ctx context.Context, t Time) (*collection.Collection, Status, error)
}

// StaticSource is a Source which returns the same in-memory collection at
// every time.
type StaticSource struct {
	mu sync.Mutex
	coll *collection.Collection
	stamp, lastSig uint64
}

// Type assertion
var _ Source = &StaticSource{ }

// NewStaticSource returns a source serving coll. The source takes over the
// caller's reference to coll.
func NewStaticSource(coll *collection.Collection) *StaticSource {
	return &StaticSource{ coll: coll }
}

// SetCollection replaces the collection, releasing the old one.
func (s *StaticSource) SetCollection(coll *collection.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll != nil && s.coll != coll { s.coll.Release() }
	s.coll, s.stamp = coll, 0
}

// Collection returns the collection being served. Changing an object in it
// which isn't shared with the pipeline's cache (or calling MarkChanged on
// one) changes the stamp.
func (s *StaticSource) Collection() *collection.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll
}

func (s *StaticSource) Stamp(t Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil { return 0, g_error.ErrMissingInput }

	sig := s.coll.Signature()
	if s.stamp == 0 || sig != s.lastSig {
		s.stamp, s.lastSig = object.NextRevision(), sig
	}
	return s.stamp, nil
}

func (s *StaticSource) Load(
	ctx context.Context, t Time,
) (*collection.Collection, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil { return nil, Status{ }, g_error.ErrMissingInput }
	return s.coll.Clone(), OK(), nil
}
