/*package bonds implements bond lists.

Every undirected bond is stored as two half-bonds, A->B and B->A. Each
half-bond carries the periodic image shift of B relative to A, and the shift of
B->A is always the negation of the shift of A->B. HalfCount is the primitive
count; Count is HalfCount/2. Bond property stores have one element per
half-bond.
*/
package bonds

import (
	"fmt"

	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
)

// Bond is a single half-bond from particle A to particle B. Shift is the
// number of cell vectors that have to be added to B's position to reach the
// image of B which A is bonded to.
type Bond struct {
	A, B int
	Shift [3]int
}

// Reverse returns the partner half-bond B->A.
func (b Bond) Reverse() Bond {
	return Bond{ b.B, b.A, [3]int{ -b.Shift[0], -b.Shift[1], -b.Shift[2] } }
}

// List is a list of half-bonds.
type List struct {
	object.Base
	bonds []Bond
}

// Type assertion
var _ object.Object = &List{ }

// New returns an empty bond list.
func New() *List {
	l := &List{ }
	l.Init()
	return l
}

// HalfCount returns the number of half-bonds.
func (l *List) HalfCount() int { return len(l.bonds) }

// Count returns the number of full bonds, HalfCount()/2.
func (l *List) Count() int { return len(l.bonds) / 2 }

// At returns half-bond i.
func (l *List) At(i int) Bond { return l.bonds[i] }

// Bonds returns the half-bonds. The slice must not be modified.
func (l *List) Bonds() []Bond { return l.bonds }

// Add appends both halves of the bond a->b with the given shift. The list
// must not be shared.
func (l *List) Add(a, b int, shift [3]int) error {
	if err := l.checkExclusive(); err != nil { return err }
	bond := Bond{ a, b, shift }
	l.bonds = append(l.bonds, bond, bond.Reverse())
	l.Touch()
	return nil
}

// AddHalf appends a single half-bond. Importers that read both halves from a
// file use this; the caller is responsible for keeping the list symmetric.
func (l *List) AddHalf(b Bond) error {
	if err := l.checkExclusive(); err != nil { return err }
	l.bonds = append(l.bonds, b)
	l.Touch()
	return nil
}

// SetShift replaces the shift of half-bond i. It does not touch the partner
// half-bond.
func (l *List) SetShift(i int, shift [3]int) error {
	if err := l.checkExclusive(); err != nil { return err }
	l.bonds[i].Shift = shift
	l.Touch()
	return nil
}

func (l *List) checkExclusive() error {
	if l.Shared() {
		return fmt.Errorf("bond list: %w", g_error.ErrSharedMutation)
	}
	return nil
}

// CheckIndices returns an error if any half-bond references a particle
// outside [0, n).
func (l *List) CheckIndices(n int) error {
	for i, b := range l.bonds {
		if b.A < 0 || b.A >= n || b.B < 0 || b.B >= n {
			return fmt.Errorf("half-bond %d (%d->%d) references a particle " +
				"outside [0, %d): %w", i, b.A, b.B, n,
				g_error.ErrIndexOutOfRange)
		}
	}
	return nil
}

// CheckSymmetry returns an error unless every half-bond has exactly one
// partner B->A with the negated shift.
func (l *List) CheckSymmetry() error {
	counts := map[Bond]int{ }
	for _, b := range l.bonds { counts[b]++ }

	for _, b := range l.bonds {
		if counts[b] != counts[b.Reverse()] {
			return fmt.Errorf("half-bond %d->%d %v occurs %d times, but its " +
				"partner occurs %d times", b.A, b.B, b.Shift,
				counts[b], counts[b.Reverse()])
		}
		if b == b.Reverse() {
			return fmt.Errorf("half-bond %d->%d %v is its own partner",
				b.A, b.B, b.Shift)
		}
	}
	return nil
}

// Remap renumbers particles after some of them were deleted. newIndex[i] is
// the new index of particle i, or -1 if it was deleted. Half-bonds touching a
// deleted particle are dropped. The returned mask says which of the old
// half-bonds were kept, so bond properties can be filtered to match.
func (l *List) Remap(newIndex []int) ([]bool, error) {
	if err := l.checkExclusive(); err != nil { return nil, err }
	if err := l.CheckIndices(len(newIndex)); err != nil { return nil, err }

	keep := make([]bool, len(l.bonds))
	out := l.bonds[:0]
	for i, b := range l.bonds {
		a, c := newIndex[b.A], newIndex[b.B]
		if a < 0 || c < 0 { continue }
		keep[i] = true
		out = append(out, Bond{ a, c, b.Shift })
	}
	l.bonds = out
	l.Touch()
	return keep, nil
}

// Clone returns a copy with a fresh revision and no referrers.
func (l *List) Clone() *List {
	out := New()
	out.bonds = append([]Bond{ }, l.bonds...)
	return out
}

func (l *List) CloneObject() object.Object { return l.Clone() }
