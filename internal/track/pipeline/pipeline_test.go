package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackgeometry/internal/config"
	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestRun_Synthetic(t *testing.T) {
	t.Parallel()

	raw := track.Synthesize(track.DefaultSynthOptions())
	raw[100].Level1 += 500
	before := track.Clone(raw)

	var progress []aggregation.Progress
	res, err := Run(context.Background(), raw, DefaultSettings(), func(p aggregation.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, before, raw, "raw rows must not be mutated")
	assert.Len(t, res.Cleaned, len(raw))
	assert.Len(t, res.Corrected, len(raw))

	// 800 samples at 0.25 m reach 199.75 m: 200 one-metre buckets.
	assert.Len(t, res.Aggregated, 200)
	assert.Len(t, res.CrossLevel, len(res.Aggregated))
	assert.Len(t, res.LevelDeviation, len(res.Aggregated))
	// Straightness windows start at the first midpoint (0.5 m), so the
	// last midpoint folds into window 199.
	assert.Len(t, res.Straightness, 199)
	assert.NotEmpty(t, res.Planarity)
	assert.Len(t, res.Summary, len(track.NumericChannels))
	assert.GreaterOrEqual(t, res.Outliers.Channels[track.Level1].Replaced, 1)
	assert.Less(t, res.Cleaned[100].Level1, 100.0)

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1].Percent)

	// Level3 carries the default x100 correction.
	assert.InDelta(t, res.Cleaned[0].Level3*100, res.Corrected[0].Level3, 1e-9)
}

func TestRun_StageOrder(t *testing.T) {
	t.Parallel()

	raw := []track.Row{
		{Index: 0, Travelled: 0.1, Level1: 1, Level2: 2, Level5: 3, Level6: 5},
		{Index: 1, Travelled: 0.6, Level1: 3, Level2: 4, Level5: 5, Level6: 7},
		{Index: 2, Travelled: 1.2, Level1: 5, Level2: 6, Level5: 7, Level6: 9},
	}
	s := DefaultSettings()
	s.SkipOutliers = true
	s.Correction = track.Correction{track.Level1: {Scale: 2, Offset: 0}}
	s.Aggregation = track.AggregationSettings{Interval: 1, Method: track.MethodMean, EMASpan: 1}

	res, err := Run(context.Background(), raw, s, nil)
	require.NoError(t, err)

	require.Len(t, res.Aggregated, 2)
	assert.Equal(t, 4.0, res.Aggregated[0].Level1, "mean of corrected 2 and 6")
	assert.Equal(t, 0.5, res.Aggregated[0].Travelled)
	assert.Equal(t, analysis.PairRow{Index: 0, Travelled: 0.5, Left: 3, Right: 4}, res.CrossLevel[0])
	assert.Equal(t, analysis.PairRow{Index: 0, Travelled: 0.5, Left: 3, Right: 0}, res.LevelDeviation[0])
}

func TestRun_InvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.Aggregation.Interval = 0.05

	_, err := Run(context.Background(), []track.Row{{}}, s, nil)
	var verr *track.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Result.Errors, track.MsgIntervalTooSmall)

	s = DefaultSettings()
	bad := track.DefaultOutlierSettings()
	bad.ZScoreThreshold = -1
	s.Outliers = track.BulkPolicy(bad)
	_, err = Run(context.Background(), nil, s, nil)
	assert.True(t, errors.As(err, &verr))
}

func TestRun_InvalidAnalysisSettings(t *testing.T) {
	s := DefaultSettings()
	s.Aggregation.Interval = 0.05
	s.Straightness.ChannelB = "Speed"
	s.Planarity.Interval = 0
	s.Planarity.Method = "max"

	_, err := Run(context.Background(), []track.Row{{}}, s, nil)
	var verr *track.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{
		track.MsgIntervalTooSmall,
		analysis.MsgStraightnessChannel,
		analysis.MsgPlanarityInterval,
		analysis.MsgPlanarityMethod,
	}, verr.Result.Errors)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, track.Synthesize(track.DefaultSynthOptions()), DefaultSettings(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestResult_ProjectedDoesNotMutate(t *testing.T) {
	raw := track.Synthesize(track.SynthOptions{Rows: 40, Spacing: 0.5, Seed: 9})
	s := DefaultSettings()
	s.STAOffset = 1000

	res, err := Run(context.Background(), raw, s, nil)
	require.NoError(t, err)

	p := res.Projected()
	require.Equal(t, len(res.Aggregated), p.Aggregated.Len())
	assert.Equal(t, res.Aggregated[0].Travelled+1000, p.Aggregated.Rows()[0].Travelled)
	assert.Equal(t, res.Aggregated[0].Travelled, p.Aggregated.Base()[0].Travelled)
	assert.Equal(t, 0.5, res.Aggregated[0].Travelled, "result rows stay unshifted")
	assert.Equal(t, res.CrossLevel[0].Travelled+1000, p.CrossLevel.Rows()[0].Travelled)
}

func TestResult_Exceedances(t *testing.T) {
	res := &Result{
		CrossLevel: []analysis.PairRow{{Index: 1, Left: 3.5}},
		Planarity:  []analysis.PlanarityRow{{Index: 2, PL: 1}},
	}
	got := res.Exceedances(analysis.DefaultLimits())
	assert.Len(t, got[analysis.MetricCrossLevel], 1)
	assert.Empty(t, got[analysis.MetricPlanarity])
	assert.Contains(t, got, analysis.MetricStraightness)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.EmptyPipelineConfig()
	off := config.OutlierModeOff
	offset := 250.0
	cfg.OutlierMode = &off
	cfg.STAOffset = &offset

	s := SettingsFromConfig(cfg)
	assert.True(t, s.SkipOutliers)
	assert.Equal(t, 250.0, s.STAOffset)
	assert.Equal(t, track.DefaultAggregationSettings(), s.Aggregation)
	assert.Equal(t, analysis.DefaultPlanaritySettings(), s.Planarity)
	assert.Equal(t, analysis.DefaultStraightnessSettings(), s.Straightness)

	assert.Equal(t, DefaultSettings().Aggregation, SettingsFromConfig(nil).Aggregation)

	defaults := SettingsFromConfig(config.MustLoadDefaultConfig())
	assert.NoError(t, defaults.Validate())
	assert.Equal(t, track.OutlierModeBulk, defaults.Outliers.Mode())
}
