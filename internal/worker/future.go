package worker

import (
	"context"
	"sync"

	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
)

// progressBuffer holds one update per 5% plus the final 100%.
const progressBuffer = 32

// Future is the pending result of one submitted job.
type Future[T any] struct {
	id       string
	kind     Kind
	done     chan struct{}
	progress chan aggregation.Progress
	cancel   context.CancelFunc

	mu       sync.Mutex
	attempts int
	value    T
	err      error
}

func newFuture[T any](id string, kind Kind, cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		id:       id,
		kind:     kind,
		done:     make(chan struct{}),
		progress: make(chan aggregation.Progress, progressBuffer),
		cancel:   cancel,
	}
}

// ID returns the job's correlation id.
func (f *Future[T]) ID() string { return f.id }

// Kind returns the computation the job runs.
func (f *Future[T]) Kind() Kind { return f.kind }

// Done is closed once the job has resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Progress delivers progress updates for this job. Updates are dropped
// rather than blocking the worker when the reader falls behind. The channel
// is closed when the job resolves.
func (f *Future[T]) Progress() <-chan aggregation.Progress { return f.progress }

// Cancel stops the job if it is running and prevents it from starting if it
// is still queued.
func (f *Future[T]) Cancel() { f.cancel() }

// Attempts returns how many times the computation has been started.
func (f *Future[T]) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Wait blocks until the job resolves or ctx is done. A failed job never
// returns a partial value.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) setAttempts(n int) {
	f.mu.Lock()
	f.attempts = n
	f.mu.Unlock()
}

func (f *Future[T]) offer(p aggregation.Progress) {
	select {
	case f.progress <- p:
	default:
	}
}

func (f *Future[T]) resolve(attempts int, value T, err error) {
	f.mu.Lock()
	f.attempts = attempts
	if err == nil {
		f.value = value
	}
	f.err = err
	f.mu.Unlock()
	f.cancel()
	close(f.progress)
	close(f.done)
}
