package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
	"github.com/banshee-data/trackgeometry/internal/track/outlier"
	"github.com/banshee-data/trackgeometry/internal/track/pipeline"
)

// computeFunc is one attempt of a job. progress is never nil.
type computeFunc[T any] func(ctx context.Context, progress aggregation.ProgressFunc) (T, error)

// submit queues fn and returns its Future. The job is cancelled by ctx,
// by Future.Cancel or by Close.
func submit[T any](w *Worker, ctx context.Context, kind Kind, rowsIn int, settings any, fn computeFunc[T], count func(T) int) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	f := newFuture[T](uuid.NewString(), kind, func() {
		stop()
		cancel()
	})

	var result T
	t := &task{
		id:       f.id,
		kind:     kind,
		ctx:      jobCtx,
		rowsIn:   rowsIn,
		settings: settings,
		run: func(ctx context.Context) error {
			v, err := fn(ctx, func(p aggregation.Progress) {
				f.offer(p)
				w.publish(Event{JobID: f.id, Kind: kind, Progress: p})
			})
			if err != nil {
				return err
			}
			result = v
			return nil
		},
		rowsOut: func() int {
			if count == nil {
				return 0
			}
			return count(result)
		},
		setAttempts: f.setAttempts,
		complete: func(attempts int, err error) {
			f.resolve(attempts, result, err)
		},
	}

	if err := w.enqueue(t); err != nil {
		f.resolve(0, result, err)
	}
	return f
}

func countRows[R any](rows []R) int { return len(rows) }

// Aggregate queues an aggregation of rows.
func (w *Worker) Aggregate(ctx context.Context, rows []track.Row, s track.AggregationSettings) *Future[[]track.Row] {
	return submit[[]track.Row](w, ctx, KindAggregate, len(rows), s,
		func(ctx context.Context, progress aggregation.ProgressFunc) ([]track.Row, error) {
			return aggregation.Aggregate(ctx, rows, s, progress)
		}, countRows[track.Row])
}

// Validate queues a settings pre-check. The result is the value, never an
// error.
func (w *Worker) Validate(ctx context.Context, s track.AggregationSettings) *Future[track.ValidationResult] {
	return submit[track.ValidationResult](w, ctx, KindValidate, 0, s,
		func(context.Context, aggregation.ProgressFunc) (track.ValidationResult, error) {
			return aggregation.Validate(s), nil
		}, nil)
}

// Cleaned is the outcome of an outlier job.
type Cleaned struct {
	Rows   []track.Row    `json:"-"`
	Report outlier.Report `json:"report"`
}

// RemoveOutliers queues outlier replacement under policy.
func (w *Worker) RemoveOutliers(ctx context.Context, rows []track.Row, policy track.OutlierPolicy) *Future[Cleaned] {
	return submit[Cleaned](w, ctx, KindOutliers, len(rows), policy.Mode(),
		func(ctx context.Context, _ aggregation.ProgressFunc) (Cleaned, error) {
			if err := policy.Validate(); err != nil {
				return Cleaned{}, track.Invalid(err.Error())
			}
			if err := ctx.Err(); err != nil {
				return Cleaned{}, err
			}
			cleaned, report := outlier.Replace(rows, policy)
			return Cleaned{Rows: cleaned, Report: report}, nil
		}, func(c Cleaned) int { return len(c.Rows) })
}

// Straightness queues the windowed standard-deviation metric.
func (w *Worker) Straightness(ctx context.Context, rows []track.Row, s analysis.StraightnessSettings, corr *track.ScaleOffset) *Future[[]analysis.StraightnessRow] {
	return submit[[]analysis.StraightnessRow](w, ctx, KindStraightness, len(rows), s,
		func(ctx context.Context, _ aggregation.ProgressFunc) ([]analysis.StraightnessRow, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return analysis.Straightness(rows, s, corr)
		}, countRows[analysis.StraightnessRow])
}

// Planarity queues the four-point planarity metric.
func (w *Worker) Planarity(ctx context.Context, rows []track.Row, s analysis.PlanaritySettings, corr *track.ScaleOffset) *Future[[]analysis.PlanarityRow] {
	return submit[[]analysis.PlanarityRow](w, ctx, KindPlanarity, len(rows), s,
		func(ctx context.Context, _ aggregation.ProgressFunc) ([]analysis.PlanarityRow, error) {
			return analysis.Planarity(ctx, rows, s, corr)
		}, countRows[analysis.PlanarityRow])
}

// RunPipeline queues a full pipeline run. Progress reports the aggregation
// stage.
func (w *Worker) RunPipeline(ctx context.Context, raw []track.Row, s pipeline.Settings) *Future[*pipeline.Result] {
	return submit[*pipeline.Result](w, ctx, KindPipeline, len(raw), s,
		func(ctx context.Context, progress aggregation.ProgressFunc) (*pipeline.Result, error) {
			return pipeline.Run(ctx, raw, s, progress)
		}, func(r *pipeline.Result) int {
			if r == nil {
				return 0
			}
			return len(r.Aggregated)
		})
}
