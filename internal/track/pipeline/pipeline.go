// Package pipeline runs the track-geometry stages in order:
// raw → outlier-cleaned → corrected → aggregated → derived metrics.
//
// This package is the composition root: it imports the stage packages
// (outlier, correction, aggregation, analysis, sta) but none of them
// import pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trackgeometry/internal/config"
	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
	"github.com/banshee-data/trackgeometry/internal/track/correction"
	"github.com/banshee-data/trackgeometry/internal/track/outlier"
	"github.com/banshee-data/trackgeometry/internal/track/sta"
)

// Settings is the full, immutable input for one run. Callers own it; Run
// only reads it.
type Settings struct {
	Outliers            track.OutlierPolicy           `json:"-"`
	SkipOutliers        bool                          `json:"skipOutliers"`
	Correction          track.Correction              `json:"correction"`
	Aggregation         track.AggregationSettings     `json:"aggregation"`
	Straightness        analysis.StraightnessSettings `json:"straightness"`
	Planarity           analysis.PlanaritySettings    `json:"planarity"`
	AnalysisCorrections analysis.AnalysisCorrections  `json:"analysisCorrections"`
	STAOffset           float64                       `json:"staOffset"`
}

// DefaultSettings returns bulk outlier replacement, the default channel
// corrections and 1 m median aggregation.
func DefaultSettings() Settings {
	return Settings{
		Outliers:            track.BulkPolicy(track.DefaultOutlierSettings()),
		Correction:          track.DefaultCorrection(),
		Aggregation:         track.DefaultAggregationSettings(),
		Straightness:        analysis.DefaultStraightnessSettings(),
		Planarity:           analysis.DefaultPlanaritySettings(),
		AnalysisCorrections: analysis.AnalysisCorrections{},
	}
}

// SettingsFromConfig resolves a PipelineConfig into Settings.
func SettingsFromConfig(cfg *config.PipelineConfig) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	policy, ok := cfg.GetOutlierPolicy()
	s.Outliers = policy
	s.SkipOutliers = !ok
	s.Correction = cfg.GetCorrection()
	s.Aggregation = cfg.GetAggregationSettings()
	a, b := cfg.GetStraightnessChannels()
	s.Straightness = analysis.StraightnessSettings{
		Interval: cfg.GetStraightnessInterval(),
		ChannelA: a,
		ChannelB: b,
	}
	s.Planarity = analysis.PlanaritySettings{
		Interval: cfg.GetPlanarityInterval(),
		Method:   cfg.GetPlanarityMethod(),
		EMASpan:  cfg.GetPlanarityEMASpan(),
	}
	s.AnalysisCorrections = cfg.GetAnalysisCorrections()
	s.STAOffset = cfg.GetSTAOffset()
	return s
}

// Validate checks every stage's settings without running anything. All
// violations come back together as one *track.ValidationError.
func (s Settings) Validate() error {
	msgs := track.ValidateAggregation(s.Aggregation).Errors
	if !s.SkipOutliers {
		msgs = appendInvalid(msgs, s.Outliers.Validate())
	}
	msgs = appendInvalid(msgs, s.Straightness.Validate())
	msgs = appendInvalid(msgs, s.Planarity.Validate())
	if len(msgs) > 0 {
		return track.Invalid(msgs...)
	}
	return nil
}

func appendInvalid(msgs []string, err error) []string {
	if err == nil {
		return msgs
	}
	var verr *track.ValidationError
	if errors.As(err, &verr) && error(verr) == err {
		return append(msgs, verr.Result.Errors...)
	}
	return append(msgs, err.Error())
}

// Result holds the output of every stage. No field aliases the raw input.
type Result struct {
	Cleaned        []track.Row                     `json:"-"`
	Corrected      []track.Row                     `json:"-"`
	Aggregated     []track.Row                     `json:"aggregated"`
	Straightness   []analysis.StraightnessRow      `json:"straightness"`
	Planarity      []analysis.PlanarityRow         `json:"planarity"`
	CrossLevel     []analysis.PairRow              `json:"crossLevel"`
	LevelDeviation []analysis.PairRow              `json:"levelDeviation"`
	Outliers       outlier.Report                  `json:"outliers"`
	Summary        map[track.Channel]track.Summary `json:"summary"`

	staOffset float64
}

// Projected is the read-time STA view of a Result.
type Projected struct {
	Aggregated     sta.Projection[track.Row]
	Straightness   sta.Projection[analysis.StraightnessRow]
	Planarity      sta.Projection[analysis.PlanarityRow]
	CrossLevel     sta.Projection[analysis.PairRow]
	LevelDeviation sta.Projection[analysis.PairRow]
}

// Projected shifts every derived output by the run's STA offset. The Result
// itself is unchanged.
func (r *Result) Projected() Projected {
	return Projected{
		Aggregated:     sta.Project(r.Aggregated, r.staOffset),
		Straightness:   sta.Project(r.Straightness, r.staOffset),
		Planarity:      sta.Project(r.Planarity, r.staOffset),
		CrossLevel:     sta.Project(r.CrossLevel, r.staOffset),
		LevelDeviation: sta.Project(r.LevelDeviation, r.staOffset),
	}
}

// Exceedances checks each derived metric against its limit.
func (r *Result) Exceedances(limits map[analysis.Metric]analysis.Limit) map[analysis.Metric][]analysis.Exceedance {
	out := make(map[analysis.Metric][]analysis.Exceedance)
	if l, ok := limits[analysis.MetricStraightness]; ok {
		out[analysis.MetricStraightness] = analysis.FindExceedances(r.Straightness, l)
	}
	if l, ok := limits[analysis.MetricPlanarity]; ok {
		out[analysis.MetricPlanarity] = analysis.FindExceedances(r.Planarity, l)
	}
	if l, ok := limits[analysis.MetricCrossLevel]; ok {
		out[analysis.MetricCrossLevel] = analysis.FindExceedances(r.CrossLevel, l)
	}
	if l, ok := limits[analysis.MetricLevelDeviation]; ok {
		out[analysis.MetricLevelDeviation] = analysis.FindExceedances(r.LevelDeviation, l)
	}
	return out
}

// Run executes every stage over raw. progress receives the aggregation
// stage's updates and may be nil. Either the whole run succeeds or an
// error is returned with no partial Result.
func Run(ctx context.Context, raw []track.Row, s Settings, progress aggregation.ProgressFunc) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	res := &Result{staOffset: s.STAOffset}

	if s.SkipOutliers {
		res.Cleaned = track.Clone(raw)
	} else {
		res.Cleaned, res.Outliers = outlier.Replace(raw, s.Outliers)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Corrected = correction.Apply(res.Cleaned, s.Correction)

	agg, err := aggregation.Aggregate(ctx, res.Corrected, s.Aggregation, progress)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	res.Aggregated = agg

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := analysis.Straightness(agg, s.Straightness, s.AnalysisCorrections.For(analysis.MetricStraightness))
		if err != nil {
			return fmt.Errorf("straightness: %w", err)
		}
		res.Straightness = rows
		return nil
	})
	g.Go(func() error {
		rows, err := analysis.Planarity(gctx, agg, s.Planarity, s.AnalysisCorrections.For(analysis.MetricPlanarity))
		if err != nil {
			return fmt.Errorf("planarity: %w", err)
		}
		res.Planarity = rows
		return nil
	})
	g.Go(func() error {
		res.CrossLevel = analysis.CrossLevel(agg, s.AnalysisCorrections.For(analysis.MetricCrossLevel))
		return nil
	})
	g.Go(func() error {
		res.LevelDeviation = analysis.LevelDeviation(agg, s.AnalysisCorrections.For(analysis.MetricLevelDeviation))
		return nil
	})
	g.Go(func() error {
		res.Summary = track.Summarize(agg, track.NumericChannels)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	monitoring.Logf("[pipeline] %d raw rows -> %d aggregated, %d straightness, %d planarity",
		len(raw), len(res.Aggregated), len(res.Straightness), len(res.Planarity))
	return res, nil
}
