package aggregation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/track"
)

func init() {
	monitoring.SetLogger(nil)
}

func settings(interval float64, method track.Method) track.AggregationSettings {
	return track.AggregationSettings{Interval: interval, Method: method, EMASpan: 5}
}

func TestAggregate_MeanExample(t *testing.T) {
	t.Parallel()

	rows := []track.Row{
		{Index: 0, Travelled: 0, Level1: 1, Level2: 2},
		{Index: 1, Travelled: 0.5, Level1: 3, Level2: 4},
	}
	out, err := Aggregate(context.Background(), rows, settings(1, track.MethodMean), nil)
	require.NoError(t, err)

	want := []track.Row{{Index: 0, Travelled: 0.5, Level1: 2, Level2: 3}}
	if diff := cmp.Diff(want, out, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_OneRowPerNonEmptyBucket(t *testing.T) {
	t.Parallel()

	rows := []track.Row{
		{Index: 0, Travelled: 0, Level1: 1},
		{Index: 1, Travelled: 0.2, Level1: 3},
		{Index: 2, Travelled: 2.5, Level1: 5},
		{Index: 3, Travelled: 2.7, Level1: 7},
		{Index: 4, Travelled: 5.0, Level1: 9},
	}
	out, err := Aggregate(context.Background(), rows, settings(1, track.MethodMedian), nil)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []float64{0.5, 2.5, 4.5}, []float64{out[0].Travelled, out[1].Travelled, out[2].Travelled})
	assert.Equal(t, []float64{2, 6, 9}, track.Column(out, track.Level1))
	assert.Equal(t, []int{0, 2, 4}, []int{out[0].Index, out[1].Index, out[2].Index})
}

func TestAggregate_SortsAndKeepsFirstRowFields(t *testing.T) {
	t.Parallel()

	rows := []track.Row{
		{Index: 9, Travelled: 0.8, Level1: 10, Passthrough: track.Passthrough{Timestamp: "late"}},
		{Index: 3, Travelled: 0.1, Level1: 20, Passthrough: track.Passthrough{Timestamp: "early"}},
	}
	out, err := Aggregate(context.Background(), rows, settings(1, track.MethodMean), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Index)
	assert.Equal(t, "early", out[0].Passthrough.Timestamp)
	assert.Equal(t, 9, rows[0].Index, "input order must not change")
}

func TestAggregate_DropsNegativeTravelled(t *testing.T) {
	rows := []track.Row{
		{Index: 0, Travelled: -1, Level1: 100},
		{Index: 1, Travelled: 0.4, Level1: 1},
	}
	out, err := Aggregate(context.Background(), rows, settings(1, track.MethodMean), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Level1)
}

func TestAggregate_NaNTravelledKeepsOneRowPerBucket(t *testing.T) {
	t.Parallel()

	rows := []track.Row{
		{Index: 0, Travelled: 0.5, Level1: 1},
		{Index: 1, Travelled: math.NaN(), Level1: 100},
		{Index: 2, Travelled: 2.5, Level1: 5},
		{Index: 3, Travelled: math.NaN(), Level1: 100},
		{Index: 4, Travelled: 0.7, Level1: 3},
		{Index: 5, Travelled: math.Inf(1), Level1: 100},
	}
	out, err := Aggregate(context.Background(), rows, settings(1, track.MethodMean), nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []float64{0.5, 2.5}, []float64{out[0].Travelled, out[1].Travelled})
	assert.Equal(t, []float64{2, 5}, track.Column(out, track.Level1))
}

func TestAggregate_EmptyInput(t *testing.T) {
	var got []Progress
	out, err := Aggregate(context.Background(), nil, settings(1, track.MethodMean), func(p Progress) { got = append(got, p) })
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []Progress{{Percent: 100}}, got)
}

func TestAggregate_InvalidSettings(t *testing.T) {
	_, err := Aggregate(context.Background(), []track.Row{{}}, track.AggregationSettings{Interval: 0.05, Method: "bogus"}, nil)
	var verr *track.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Result.Errors, 2)
}

func TestAggregate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := track.Synthesize(track.DefaultSynthOptions())
	out, err := Aggregate(ctx, rows, settings(1, track.MethodMean), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestAggregate_ProgressEveryFivePercent(t *testing.T) {
	t.Parallel()

	rows := make([]track.Row, 100)
	for i := range rows {
		rows[i] = track.Row{Index: i, Travelled: float64(i) + 0.5}
	}

	var got []Progress
	_, err := Aggregate(context.Background(), rows, settings(1, track.MethodMedian), func(p Progress) {
		got = append(got, p)
	})
	require.NoError(t, err)

	require.Len(t, got, 20)
	for i, p := range got {
		assert.Equal(t, 100, p.Total)
		assert.Equal(t, (i+1)*5, p.Percent)
		assert.Equal(t, (i+1)*5, p.Processed)
	}
}

func TestReducers(t *testing.T) {
	t.Parallel()

	t.Run("singletons are identity", func(t *testing.T) {
		for _, m := range []track.Method{track.MethodMedian, track.MethodMean, track.MethodEMA} {
			assert.Equal(t, 4.25, Reduce(m, []float64{4.25}, 5), m)
		}
	})

	t.Run("ema of a constant is the constant", func(t *testing.T) {
		vals := []float64{3.3, 3.3, 3.3, 3.3, 3.3, 3.3}
		for _, span := range []int{1, 2, 5, 50} {
			assert.InDelta(t, 3.3, EMA(vals, span), 1e-12)
		}
	})

	t.Run("ema weights recent values", func(t *testing.T) {
		// span 3 gives alpha 0.5.
		assert.Equal(t, 1.5, EMA([]float64{1, 2}, 3))
		assert.Equal(t, 2.25, EMA([]float64{1, 2, 3}, 3))
		assert.Equal(t, 3.0, EMA([]float64{1, 2, 3}, 0), "span below 1 acts as 1")
	})

	t.Run("median and mean", func(t *testing.T) {
		assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
		assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
		assert.Equal(t, 2.5, Mean([]float64{4, 1, 2, 3}))
		assert.Equal(t, 2.5, Reduce("unknown", []float64{4, 1, 2, 3}, 0))
	})
}

func TestPartition(t *testing.T) {
	t.Parallel()

	rows := []track.Row{{Travelled: 10}, {Travelled: 10.5}, {Travelled: 13}, {Travelled: 9}}
	buckets, layout := Partition(rows, 10, 1)

	assert.Equal(t, 3, layout.Total)
	assert.Equal(t, 1, layout.Dropped)
	require.Len(t, buckets, 2)
	assert.Equal(t, 0, buckets[0].Index)
	assert.Len(t, buckets[0].Rows, 2)
	assert.Equal(t, 2, buckets[1].Index, "sample on the final edge joins the last bucket")
	assert.Equal(t, 12.5, buckets[1].Midpoint())

	single, layout := Partition([]track.Row{{Travelled: 4}, {Travelled: 4}}, 4, 3)
	assert.Equal(t, 1, layout.Total)
	require.Len(t, single, 1)
	assert.Len(t, single[0].Rows, 2)

	none, _ := Partition(rows, 0, 0)
	assert.Nil(t, none)
}

func TestPartition_DropsOutOfRangeDistances(t *testing.T) {
	t.Parallel()

	rows := []track.Row{
		{Index: 0, Travelled: 1e300},
		{Index: 1, Travelled: 3.2},
		{Index: 2, Travelled: math.NaN()},
		{Index: 3, Travelled: 1.1},
	}
	buckets, layout := Partition(rows, 0, 1)

	assert.Equal(t, 2, layout.Dropped)
	assert.Equal(t, 4, layout.Total)
	require.Len(t, buckets, 2)
	assert.Equal(t, []int{1, 3}, []int{buckets[0].Index, buckets[1].Index})
	for _, b := range buckets {
		assert.GreaterOrEqual(t, b.Midpoint(), 0.0)
	}
}
