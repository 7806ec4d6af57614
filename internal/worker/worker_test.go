package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/timeutil"
	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
	"github.com/banshee-data/trackgeometry/internal/track/pipeline"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestWorker(t *testing.T, opts Options) (*Worker, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if opts.Clock == nil {
		opts.Clock = clock
	}
	w := New(opts)
	t.Cleanup(func() { w.Close() })
	return w, clock
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// blocker is a computation that holds the worker until released.
type blocker struct {
	started chan struct{}
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blocker) fn(ctx context.Context, _ aggregation.ProgressFunc) (int, error) {
	close(b.started)
	select {
	case <-b.release:
		return 1, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type recorderFunc func(context.Context, RunRecord) error

func (f recorderFunc) RecordRun(ctx context.Context, rec RunRecord) error { return f(ctx, rec) }

func TestWorker_AggregateWithProgress(t *testing.T) {
	w, _ := newTestWorker(t, Options{})
	w.Start()

	rows := track.Synthesize(track.SynthOptions{Rows: 400, Spacing: 0.25, Seed: 3})
	f := w.Aggregate(context.Background(), rows, track.DefaultAggregationSettings())
	assert.NotEmpty(t, f.ID())
	assert.Equal(t, KindAggregate, f.Kind())

	got, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.Equal(t, 1, f.Attempts())

	var last aggregation.Progress
	for p := range f.Progress() {
		last = p
	}
	assert.Equal(t, 100, last.Percent)
}

func TestWorker_ValidateReturnsResult(t *testing.T) {
	w, _ := newTestWorker(t, Options{})
	w.Start()

	res, err := w.Validate(context.Background(), track.AggregationSettings{Interval: 0.05, Method: "max"}).Wait(waitCtx(t))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.ElementsMatch(t, []string{track.MsgIntervalTooSmall, track.MsgInvalidMethod}, res.Errors)

	res, err = w.Validate(context.Background(), track.DefaultAggregationSettings()).Wait(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestWorker_FIFO(t *testing.T) {
	w, _ := newTestWorker(t, Options{})

	var mu sync.Mutex
	var order []int
	futures := make([]*Future[int], 5)
	for i := range futures {
		i := i
		futures[i] = submit[int](w, context.Background(), KindAggregate, 0, nil,
			func(context.Context, aggregation.ProgressFunc) (int, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i, nil
			}, nil)
	}
	assert.Equal(t, 5, w.Pending())

	w.Start()
	for i, f := range futures {
		v, err := f.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorker_RetryBackoff(t *testing.T) {
	w, clock := newTestWorker(t, Options{})
	w.Start()

	calls := 0
	f := submit[string](w, context.Background(), KindPipeline, 0, nil,
		func(context.Context, aggregation.ProgressFunc) (string, error) {
			calls++
			if calls < 3 {
				return "partial", errors.New("transient")
			}
			return "ok", nil
		}, nil)

	v, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, f.Attempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Waits())
}

func TestWorker_TerminalError(t *testing.T) {
	w, clock := newTestWorker(t, Options{})
	w.Start()

	cause := errors.New("disk on fire")
	f := submit[[]int](w, context.Background(), KindPipeline, 0, nil,
		func(context.Context, aggregation.ProgressFunc) ([]int, error) {
			return []int{1, 2}, cause
		}, nil)

	v, err := f.Wait(waitCtx(t))
	assert.Nil(t, v, "no partial result on failure")

	var terr *TerminalError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, f.ID(), terr.ID)
	assert.Equal(t, 4, terr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, f.Attempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, clock.Waits())
}

func TestWorker_CustomRetryBudget(t *testing.T) {
	w, clock := newTestWorker(t, Options{MaxRetries: -1, RetryDelay: 250 * time.Millisecond})
	w.Start()

	f := submit[int](w, context.Background(), KindPipeline, 0, nil,
		func(context.Context, aggregation.ProgressFunc) (int, error) {
			return 0, errors.New("nope")
		}, nil)
	_, err := f.Wait(waitCtx(t))
	var terr *TerminalError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 1, terr.Attempts)
	assert.Empty(t, clock.Waits())
}

func TestWorker_ValidationErrorsAreNotRetried(t *testing.T) {
	w, clock := newTestWorker(t, Options{})
	w.Start()

	f := w.Aggregate(context.Background(), []track.Row{{}}, track.AggregationSettings{Interval: 0.01, Method: track.MethodMean})
	_, err := f.Wait(waitCtx(t))

	var verr *track.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Result.Errors, track.MsgIntervalTooSmall)
	assert.Equal(t, 1, f.Attempts())
	assert.Empty(t, clock.Waits())

	_, err = w.Straightness(context.Background(), nil, analysis.StraightnessSettings{}, nil).Wait(waitCtx(t))
	assert.True(t, errors.As(err, &verr))
}

func TestWorker_InvalidPipelineSettingsAreNotRetried(t *testing.T) {
	w, clock := newTestWorker(t, Options{})
	w.Start()

	s := pipeline.DefaultSettings()
	s.Planarity.Interval = 0
	rows := track.Synthesize(track.SynthOptions{Rows: 40, Spacing: 0.25, Seed: 1})
	f := w.RunPipeline(context.Background(), rows, s)
	_, err := f.Wait(waitCtx(t))

	var verr *track.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{analysis.MsgPlanarityInterval}, verr.Result.Errors)
	var terr *TerminalError
	assert.False(t, errors.As(err, &terr))
	assert.Equal(t, 1, f.Attempts())
	assert.Empty(t, clock.Waits())
}

func TestWorker_PanicIsRetried(t *testing.T) {
	w, _ := newTestWorker(t, Options{})
	w.Start()

	calls := 0
	f := submit[int](w, context.Background(), KindPlanarity, 0, nil,
		func(context.Context, aggregation.ProgressFunc) (int, error) {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return 7, nil
		}, nil)

	v, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, f.Attempts())
}

func TestWorker_CancelQueuedJob(t *testing.T) {
	w, _ := newTestWorker(t, Options{})
	w.Start()

	b := newBlocker()
	first := submit[int](w, context.Background(), KindPipeline, 0, nil, b.fn, nil)
	<-b.started

	ran := false
	second := submit[int](w, context.Background(), KindPipeline, 0, nil,
		func(context.Context, aggregation.ProgressFunc) (int, error) {
			ran = true
			return 1, nil
		}, nil)
	second.Cancel()
	close(b.release)

	_, err := first.Wait(waitCtx(t))
	require.NoError(t, err)
	_, err = second.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, second.Attempts())
	assert.False(t, ran)
}

func TestWorker_SubmitContextCancelsRunningJob(t *testing.T) {
	w, clock := newTestWorker(t, Options{})
	w.Start()

	ctx, cancel := context.WithCancel(context.Background())
	b := newBlocker()
	f := submit[int](w, ctx, KindPipeline, 0, nil, b.fn, nil)
	<-b.started
	cancel()

	_, err := f.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.Attempts())
	assert.Empty(t, clock.Waits())
}

func TestWorker_Close(t *testing.T) {
	var mu sync.Mutex
	var records []RunRecord
	rec := recorderFunc(func(_ context.Context, r RunRecord) error {
		mu.Lock()
		defer mu.Unlock()
		records = append(records, r)
		return nil
	})
	w, _ := newTestWorker(t, Options{Recorder: rec})
	w.Start()

	b := newBlocker()
	running := submit[int](w, context.Background(), KindPipeline, 0, nil, b.fn, nil)
	<-b.started
	queued := submit[int](w, context.Background(), KindAggregate, 0, nil,
		func(context.Context, aggregation.ProgressFunc) (int, error) { return 1, nil }, nil)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")

	_, err := running.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = queued.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = w.Validate(context.Background(), track.DefaultAggregationSettings()).Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrClosed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 2)
	assert.Equal(t, StatusCancelled, records[0].Status)
	assert.Equal(t, StatusCancelled, records[1].Status)
}

func TestWorker_QueueFull(t *testing.T) {
	w, _ := newTestWorker(t, Options{QueueSize: 1})

	first := w.Validate(context.Background(), track.DefaultAggregationSettings())
	second := w.Validate(context.Background(), track.DefaultAggregationSettings())

	_, err := second.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrQueueFull)

	w.Start()
	_, err = first.Wait(waitCtx(t))
	assert.NoError(t, err)
}

func TestWorker_RecorderSeesPipelineRun(t *testing.T) {
	var got []RunRecord
	rec := recorderFunc(func(_ context.Context, r RunRecord) error {
		got = append(got, r)
		return errors.New("store unavailable")
	})
	w, clock := newTestWorker(t, Options{Recorder: rec})
	w.Start()

	raw := track.Synthesize(track.SynthOptions{Rows: 80, Spacing: 0.25, Seed: 5})
	res, err := w.RunPipeline(context.Background(), raw, pipeline.DefaultSettings()).Wait(waitCtx(t))
	require.NoError(t, err, "recorder failures never fail the job")
	require.NotNil(t, res)

	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, KindPipeline, r.Kind)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, 80, r.RowsIn)
	assert.Equal(t, len(res.Aggregated), r.RowsOut)
	assert.Contains(t, r.SettingsJSON, `"aggregation"`)
	assert.Equal(t, clock.Now(), r.FinishedAt)
	assert.Empty(t, r.Error)
}

func TestWorker_Subscribe(t *testing.T) {
	w, _ := newTestWorker(t, Options{})
	id, events := w.Subscribe()
	w.Start()

	rows := track.Synthesize(track.SynthOptions{Rows: 200, Spacing: 0.5, Seed: 2})
	f := w.Aggregate(context.Background(), rows, track.DefaultAggregationSettings())
	_, err := f.Wait(waitCtx(t))
	require.NoError(t, err)

	w.Unsubscribe(id)
	var seen []Event
	for e := range events {
		seen = append(seen, e)
	}
	require.NotEmpty(t, seen)
	for _, e := range seen {
		assert.Equal(t, f.ID(), e.JobID)
		assert.Equal(t, KindAggregate, e.Kind)
	}
	assert.Equal(t, 100, seen[len(seen)-1].Progress.Percent)

	w.Unsubscribe(id)
}
