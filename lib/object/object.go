/*package object contains the bookkeeping shared by every data object that can
live in a collection: a reference count and a revision counter.

Reference counts say how many collections (and therefore how many caches)
point at an object. An object with more than one referrer is shared and must
not be mutated; collection.CopyIfNeeded hands out a private clone instead.

Revisions are drawn from a single process-wide sequence, so a revision value
identifies one state of one object. A collection's signature can then be
built from the revisions of its contents alone.
*/
package object

import (
	"sync/atomic"
)

var revisionSource uint64

// NextRevision returns a revision number larger than every revision handed
// out before it.
func NextRevision() uint64 {
	return atomic.AddUint64(&revisionSource, 1)
}

// Object is the interface implemented by everything a collection can hold.
type Object interface {
	// Retain registers one more referrer.
	Retain()
	// Release removes one referrer.
	Release()
	// References returns the current number of referrers.
	References() int
	// Revision returns the object's current revision number.
	Revision() uint64
	// CloneObject returns a deep copy with a fresh revision and no
	// referrers.
	CloneObject() Object
}

// Base implements the reference counting and revision parts of Object. It is
// embedded by the concrete data types. The zero value is not ready for use;
// call Init first.
type Base struct {
	refs     int64
	revision uint64
}

// Init gives b its first revision and zero referrers.
func (b *Base) Init() {
	atomic.StoreInt64(&b.refs, 0)
	atomic.StoreUint64(&b.revision, NextRevision())
}

func (b *Base) Retain() { atomic.AddInt64(&b.refs, 1) }

func (b *Base) Release() {
	if atomic.AddInt64(&b.refs, -1) < 0 {
		atomic.StoreInt64(&b.refs, 0)
	}
}

func (b *Base) References() int { return int(atomic.LoadInt64(&b.refs)) }

// Shared returns true if more than one referrer holds the object.
func (b *Base) Shared() bool { return b.References() > 1 }

func (b *Base) Revision() uint64 { return atomic.LoadUint64(&b.revision) }

// Touch marks the object as changed by assigning it a new revision.
func (b *Base) Touch() { atomic.StoreUint64(&b.revision, NextRevision()) }
