/*package pipeline implements the lazily evaluated chain of stages which turns
the collection supplied by a Source into derived collections.

Evaluate walks the stages front to back. The output of every stage is cached
under a key built from the signature of the stage's input, the stage's
parameter revision, its enabled flag and the animation time, so a stage only
runs again once something upstream of it has a new revision. Invalidation is
explicit: the evaluator never looks at data, only at revisions, so a buffer
written without a Mutation or a MarkChanged call goes unnoticed.

Cached collections belong to the pipeline. Callers may read the collection in
a Result, but must Clone it before changing anything.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/object"
)

// Time is an animation frame.
type Time int

// StatusKind is the outcome of a stage. Kinds are ordered from best to worst.
type StatusKind int
const (
	Success StatusKind = iota
	Warning
	Pending
	Error
)

func (k StatusKind) String() string {
	switch k {
	case Success: return "Success"
	case Warning: return "Warning"
	case Pending: return "Pending"
	case Error: return "Error"
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is the outcome of a stage along with a message for the user.
type Status struct {
	Kind StatusKind
	Message string
}

// OK returns a Success status.
func OK() Status { return Status{ Kind: Success } }

// Warn returns a Warning status.
func Warn(format string, a ...interface{}) Status {
	return Status{ Warning, fmt.Sprintf(format, a...) }
}

// Fail returns an Error status.
func Fail(format string, a ...interface{}) Status {
	return Status{ Error, fmt.Sprintf(format, a...) }
}

// Wait returns a Pending status.
func Wait(format string, a ...interface{}) Status {
	return Status{ Pending, fmt.Sprintf(format, a...) }
}

// Worse returns whichever of s and other is worse. s wins ties.
func (s Status) Worse(other Status) Status {
	if other.Kind > s.Kind { return other }
	return s
}

func (s Status) String() string {
	if s.Message == "" { return s.Kind.String() }
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Stage is one transformation in a pipeline.
//
// Apply is given a private collection it may change freely: every object in
// it is shared with the pipeline's cache, so objects must be obtained through
// CopyIfNeeded or the collection's Mutable* methods before they are written.
// Apply returns the output collection, usually in itself. Heavy stages should
// poll ctx and return early once it is canceled; whatever they return then is
// discarded.
//
// Revision must change whenever a parameter that affects the output changes.
type Stage interface {
	Name() string
	Revision() uint64
	Enabled() bool
	Apply(
		ctx context.Context, t Time, in *collection.Collection,
	) (*collection.Collection, Status)
}

// Params carries the revision and enabled flag of a stage. Stage
// implementations embed it and call Touch from every parameter setter.
type Params struct {
	revision uint64
	disabled int32
}

// Revision returns the current parameter revision.
func (p *Params) Revision() uint64 { return atomic.LoadUint64(&p.revision) }

// Touch gives the parameters a new revision, which invalidates every cached
// result computed with the old ones.
func (p *Params) Touch() { atomic.StoreUint64(&p.revision, object.NextRevision()) }

func (p *Params) Enabled() bool { return atomic.LoadInt32(&p.disabled) == 0 }

// SetEnabled turns the stage on or off. Disabled stages pass their input
// through unchanged.
func (p *Params) SetEnabled(enabled bool) {
	flag := int32(1)
	if enabled { flag = 0 }
	atomic.StoreInt32(&p.disabled, flag)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	Params
	name string
	f func(ctx context.Context, t Time,
		in *collection.Collection) (*collection.Collection, Status)
}

// Type assertion
var _ Stage = &StageFunc{ }

// NewStageFunc returns a stage which calls f.
func NewStageFunc(
	name string,
	f func(ctx context.Context, t Time,
		in *collection.Collection) (*collection.Collection, Status),
) *StageFunc {
	s := &StageFunc{ name: name, f: f }
	s.Touch()
	return s
}

func (s *StageFunc) Name() string { return s.name }

func (s *StageFunc) Apply(
	ctx context.Context, t Time, in *collection.Collection,
) (*collection.Collection, Status) {
	return s.f(ctx, t, in)
}
