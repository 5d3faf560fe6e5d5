/*package thread contains functions useful for multi-threading: setting the
thread count and splitting loops over particles across a bounded pool of
goroutines.*/
package thread

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	g_error "github.com/phil-mansfield/nbpipe/lib/error"
)

// DefaultChunk is the number of loop iterations handed to a worker at once
// when the caller doesn't have a better idea. The context is polled once per
// chunk.
const DefaultChunk = 1 << 12

// Set sets the number of OS threads used by the process. n <= 0 means one per
// core.
func Set(n int) error {
	if n > runtime.NumCPU() {
		return fmt.Errorf("%d threads requested, but your system only has " +
			"%d cores. If you want nbpipe to use the maximum number of " +
			"threads, set Threads = -1.", n, runtime.NumCPU())
	}
	if n <= 0 { n = runtime.NumCPU() }
	runtime.GOMAXPROCS(n)
	return nil
}

// Count returns the number of threads the process is allowed to use.
func Count() int { return runtime.GOMAXPROCS(0) }

// ParallelFor calls f(start, end) on consecutive chunks of [0, n) using at
// most threads goroutines at once. threads <= 0 means Count(). chunk <= 0
// means DefaultChunk.
//
// ctx is checked before each chunk starts. If it has been canceled, no
// further chunks are started and an error wrapping ErrCanceled is returned
// once the running chunks finish. Otherwise the first error returned by f is
// returned.
func ParallelFor(
	ctx context.Context, n, chunk, threads int,
	f func(start, end int) error,
) error {
	if chunk <= 0 { chunk = DefaultChunk }
	if threads <= 0 { threads = Count() }

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for start := 0; start < n; start += chunk {
		if gctx.Err() != nil { break }

		start, end := start, start + chunk
		if end > n { end = n }
		g.Go(func() error {
			if gctx.Err() != nil { return nil }
			return f(start, end)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return g_error.Canceled("parallel loop", ctx.Err())
	}
	return err
}
