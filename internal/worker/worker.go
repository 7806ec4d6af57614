// Package worker runs track-geometry computations off the caller's
// goroutine. Jobs are queued FIFO and executed one at a time; each job gets
// a correlation id, a Future for its result and a bounded retry budget.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/timeutil"
	"github.com/banshee-data/trackgeometry/internal/track"
)

var (
	// ErrClosed is returned for jobs submitted to, or still queued in, a
	// closed worker.
	ErrClosed = errors.New("worker closed")
	// ErrQueueFull is returned when QueueSize jobs are already waiting.
	ErrQueueFull = errors.New("worker queue full")
	// ErrPanicked wraps a recovered panic from a computation.
	ErrPanicked = errors.New("computation panicked")
)

// TerminalError is surfaced once a job has used up its retry budget.
type TerminalError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Status is the final state of a job as reported to a Recorder.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Kind names the computation a job runs.
type Kind string

const (
	KindAggregate    Kind = "aggregate"
	KindValidate     Kind = "validate"
	KindOutliers     Kind = "outliers"
	KindStraightness Kind = "straightness"
	KindPlanarity    Kind = "planarity"
	KindPipeline     Kind = "pipeline"
)

// RunRecord describes one finished job.
type RunRecord struct {
	ID           string    `json:"run_id"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	Attempts     int       `json:"attempts"`
	RowsIn       int       `json:"rows_in"`
	RowsOut      int       `json:"rows_out"`
	Error        string    `json:"error,omitempty"`
	SettingsJSON string    `json:"settings_json,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Recorder persists finished jobs. Recorder errors are logged and never
// fail the job.
type Recorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Options configures a Worker. Zero values take the documented defaults.
type Options struct {
	Clock      timeutil.Clock // defaults to timeutil.RealClock
	MaxRetries int            // retries after the first attempt; default 3, negative means none
	RetryDelay time.Duration  // multiplied by the attempt number; default 1s
	QueueSize  int            // pending jobs allowed; default 16
	Recorder   Recorder       // optional
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultQueueSize  = 16
)

// task is the type-erased form of a submitted job.
type task struct {
	id       string
	kind     Kind
	ctx      context.Context
	rowsIn   int
	settings any

	// run executes one attempt and keeps its value on success.
	run func(ctx context.Context) error

	// rowsOut reports the size of the last successful value.
	rowsOut func() int

	// setAttempts publishes the running attempt count.
	setAttempts func(int)

	// complete resolves the Future exactly once.
	complete func(attempts int, err error)
}

// Worker executes queued jobs on a single goroutine.
type Worker struct {
	clock      timeutil.Clock
	maxRetries int
	retryDelay time.Duration
	queueSize  int
	recorder   Recorder
	logf       func(format string, v ...interface{})

	mu      sync.Mutex
	pending []*task
	started bool
	closed  bool
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	subscribers  map[string]chan Event
	subscriberMu sync.Mutex
}

// New creates a Worker. Call Start to begin processing and Close when done.
func New(opts Options) *Worker {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		clock:       opts.Clock,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		queueSize:   opts.QueueSize,
		recorder:    opts.Recorder,
		logf:        monitoring.Tagged("worker"),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[string]chan Event),
	}
}

// Start launches the processing goroutine. Calling it more than once, or
// after Close, has no effect.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go w.loop()
}

// Close cancels the running job, resolves every queued job with ErrClosed
// and closes all subscriber channels. It waits for the processing goroutine
// to exit.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if started {
		<-w.done
	} else {
		w.drain()
	}

	w.subscriberMu.Lock()
	for id, ch := range w.subscribers {
		close(ch)
		delete(w.subscribers, id)
	}
	w.subscriberMu.Unlock()
	return nil
}

// Pending returns the number of queued jobs not yet started.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Worker) enqueue(t *task) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if len(w.pending) >= w.queueSize {
		w.mu.Unlock()
		return ErrQueueFull
	}
	w.pending = append(w.pending, t)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (w *Worker) next() *task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	t := w.pending[0]
	w.pending[0] = nil
	w.pending = w.pending[1:]
	return t
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		if w.ctx.Err() != nil {
			w.drain()
			return
		}
		t := w.next()
		if t == nil {
			select {
			case <-w.wake:
			case <-w.ctx.Done():
			}
			continue
		}
		w.execute(t)
	}
}

// drain resolves every queued job with ErrClosed.
func (w *Worker) drain() {
	w.mu.Lock()
	queued := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, t := range queued {
		now := w.clock.Now()
		w.finish(t, 0, now, ErrClosed)
	}
}

func (w *Worker) execute(t *task) {
	startedAt := w.clock.Now()
	if err := t.ctx.Err(); err != nil {
		w.finish(t, 0, startedAt, err)
		return
	}

	var err error
	attempts := 0
retry:
	for {
		attempts++
		t.setAttempts(attempts)
		err = w.attempt(t)
		if err == nil || !retryable(err) {
			break
		}
		if attempts > w.maxRetries {
			err = &TerminalError{ID: t.id, Attempts: attempts, Err: err}
			break
		}
		delay := w.retryDelay * time.Duration(attempts)
		w.logf("job %s (%s) attempt %d failed: %v; retrying in %s", t.id, t.kind, attempts, err, delay)
		select {
		case <-w.clock.After(delay):
		case <-t.ctx.Done():
			err = t.ctx.Err()
			break retry
		}
	}
	w.finish(t, attempts, startedAt, err)
}

// attempt runs one try, converting a panic into an error.
func (w *Worker) attempt(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return t.run(t.ctx)
}

func (w *Worker) finish(t *task, attempts int, startedAt time.Time, err error) {
	rec := RunRecord{
		ID:         t.id,
		Kind:       t.kind,
		Status:     StatusComplete,
		Attempts:   attempts,
		RowsIn:     t.rowsIn,
		StartedAt:  startedAt,
		FinishedAt: w.clock.Now(),
	}
	switch {
	case err == nil:
		rec.RowsOut = t.rowsOut()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrClosed):
		rec.Status = StatusCancelled
		rec.Error = err.Error()
	default:
		rec.Status = StatusFailed
		rec.Error = err.Error()
		w.logf("job %s (%s) failed: %v", t.id, t.kind, err)
	}
	if t.settings != nil {
		if b, merr := json.Marshal(t.settings); merr == nil {
			rec.SettingsJSON = string(b)
		} else {
			w.logf("job %s: encode settings: %v", t.id, merr)
		}
	}
	if w.recorder != nil {
		if rerr := w.recorder.RecordRun(context.Background(), rec); rerr != nil {
			w.logf("job %s: record run: %v", t.id, rerr)
		}
	}
	t.complete(attempts, err)
}

// retryable reports whether a failed attempt may be re-run. Invalid
// settings and cancellation are final.
func retryable(err error) bool {
	var verr *track.ValidationError
	if errors.As(err, &verr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
