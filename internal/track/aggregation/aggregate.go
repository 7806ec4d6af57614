// Package aggregation reduces distance-tagged rows into fixed-width distance
// buckets using a median, mean or EMA reducer.
package aggregation

import (
	"context"

	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/track"
)

// Progress reports how far an aggregation has got.
type Progress struct {
	Percent   int `json:"progressPercent"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressFunc receives progress updates. It is called on the aggregating
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// progressSteps is the number of updates per run, i.e. one per 5%.
const progressSteps = 20

// Validate is the settings pre-check. It never aggregates.
func Validate(s track.AggregationSettings) track.ValidationResult {
	return track.ValidateAggregation(s)
}

// Aggregate buckets rows by floor(Travelled/Interval) from 0 and reduces
// every numeric channel of each non-empty bucket with s.Method. Output rows
// sit at the bucket midpoint and keep the Index and passthrough fields of
// the bucket's first row. Invalid settings return a *track.ValidationError
// before any work; a cancelled ctx returns ctx.Err() and no rows.
func Aggregate(ctx context.Context, rows []track.Row, s track.AggregationSettings, progress ProgressFunc) ([]track.Row, error) {
	if err := Validate(s).Err(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	buckets, layout := Partition(rows, 0, s.Interval)
	if layout.Dropped > 0 {
		monitoring.Logf("[aggregate] dropped %d rows with negative, non-finite or out-of-range Travelled", layout.Dropped)
	}

	out := make([]track.Row, 0, len(buckets))
	step := layout.Total / progressSteps
	if step < 1 {
		step = 1
	}
	nextReport := step

	values := make([]float64, 0, 64)
	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		first := b.Rows[0]
		agg := track.Row{
			Index:       first.Index,
			Travelled:   b.Midpoint(),
			Passthrough: first.Passthrough,
		}
		for _, ch := range track.NumericChannels {
			values = values[:0]
			for _, r := range b.Rows {
				v, _ := r.Value(ch)
				values = append(values, v)
			}
			agg.SetValue(ch, Reduce(s.Method, values, s.EMASpan))
		}
		out = append(out, agg)

		processed := b.Index + 1
		if processed >= nextReport && processed < layout.Total {
			progress(Progress{
				Percent:   processed * 100 / layout.Total,
				Processed: processed,
				Total:     layout.Total,
			})
			nextReport = (processed/step + 1) * step
		}
	}

	progress(Progress{Percent: 100, Processed: layout.Total, Total: layout.Total})
	return out, nil
}
