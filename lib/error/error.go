/*package error contains the error values shared by nbpipe's packages and
simple functions for reporting fatal errors from the command line driver.

Library code never exits the process. It returns errors which wrap one of the
sentinel values below, so callers can branch on them with errors.Is. Only the
nbpipe binary calls External and Internal.
*/
package error

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

var (
	// ErrIndexOutOfRange is returned when a particle index is outside
	// [0, particle count).
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrMissingInput is returned when a required property or the simulation
	// cell is absent.
	ErrMissingInput = errors.New("missing input")
	// ErrConstructionFailed is returned when a neighbor index cannot be built
	// for the given cutoff/cell combination.
	ErrConstructionFailed = errors.New("neighbor index construction failed")
	// ErrNoSuchProperty is returned by collection lookups that miss.
	ErrNoSuchProperty = errors.New("no such property")
	// ErrNoCellDefined is returned when a collection has no simulation cell.
	ErrNoCellDefined = errors.New("no simulation cell defined")
	// ErrNoSuchObject is returned when a named or singleton data object is
	// absent from a collection.
	ErrNoSuchObject = errors.New("no such data object")
	// ErrStage is wrapped by every error a pipeline stage reports.
	ErrStage = errors.New("pipeline stage failed")
	// ErrCanceled marks a cooperative abort. It is not a fault.
	ErrCanceled = errors.New("canceled")
	// ErrSharedMutation is returned when something tries to mutate an object
	// which has more than one referrer.
	ErrSharedMutation = errors.New("mutation of a shared object")
	// ErrMutationInProgress is returned when a second mutation handle is
	// requested before the first one was released.
	ErrMutationInProgress = errors.New("mutation already in progress")
	// ErrDegenerateCell is returned by operations that need to invert a
	// zero-volume simulation cell.
	ErrDegenerateCell = errors.New("degenerate simulation cell")
	// ErrCountMismatch is returned when a store's element count disagrees
	// with the collection it is being added to.
	ErrCountMismatch = errors.New("element count mismatch")
)

// StageError is the error reported when a pipeline stage finishes with an
// Error status. Message is the stage's own message, unmodified.
type StageError struct {
	Stage   string
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s': %s", e.Stage, e.Message)
}

// Is makes errors.Is(err, ErrStage) true for every StageError.
func (e *StageError) Is(target error) bool { return target == ErrStage }

// Canceled wraps ErrCanceled with a description of what was interrupted and
// the context's own error.
func Canceled(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", what, ErrCanceled)
	}
	return fmt.Errorf("%s: %w (%v)", what, ErrCanceled, cause)
}

// External reports an error to stderr and kills the function. It should be used
// when an error is something a user could reasonbly be expected to fix through
// changes in configuration/data/environement. It has the same signature at the
// standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	log.Printf("nbpipe exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stdout along with a strack trace and  kills the
// function. It should be used when the error requires a code dive to fix. It
// has the same signature at the standard fmt.*printf() functions.
func Internal(format string, a ...interface{}) {
	log.Println("nbpipe exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}
