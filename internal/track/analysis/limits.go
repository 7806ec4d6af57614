package analysis

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// Metric names a derived metric in correction documents and limit tables.
type Metric string

const (
	MetricLevelDeviation Metric = "level_deviation"
	MetricCrossLevel     Metric = "cross_level"
	MetricPlanarity      Metric = "planarity"
	MetricLongitudinal   Metric = "longitudinal_level_irregularity"
	MetricGuardRail      Metric = "guard_rail_clearance"
	MetricJointStep      Metric = "joint_step"
	MetricStraightness   Metric = "straightness_of_alignment"
)

// Metrics lists every Metric.
var Metrics = []Metric{
	MetricLevelDeviation, MetricCrossLevel, MetricPlanarity, MetricLongitudinal,
	MetricGuardRail, MetricJointStep, MetricStraightness,
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	for _, x := range Metrics {
		if x == m {
			return true
		}
	}
	return false
}

// AnalysisCorrections holds the optional scale/offset per derived metric.
type AnalysisCorrections map[Metric]track.ScaleOffset

// For returns the correction for m, or nil when none is configured.
func (c AnalysisCorrections) For(m Metric) *track.ScaleOffset {
	so, ok := c[m]
	if !ok {
		return nil
	}
	return &so
}

// LimitKind selects how a Limit is compared.
type LimitKind string

const (
	// LimitBand flags |v| > Value.
	LimitBand LimitKind = "band"
	// LimitBelow flags v >= Value.
	LimitBelow LimitKind = "below"
)

// Limit is a reference level for a metric.
type Limit struct {
	Kind  LimitKind `json:"kind"`
	Value float64   `json:"value"`
}

// Exceeds reports whether v breaks the limit. Non-finite values never do.
func (l Limit) Exceeds(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	switch l.Kind {
	case LimitBand:
		return math.Abs(v) > l.Value
	case LimitBelow:
		return v >= l.Value
	}
	return false
}

func (l Limit) String() string {
	if l.Kind == LimitBand {
		return fmt.Sprintf("±%g", l.Value)
	}
	return fmt.Sprintf("<%g", l.Value)
}

// DefaultLimits are the reference levels drawn on the analysis charts.
func DefaultLimits() map[Metric]Limit {
	return map[Metric]Limit{
		MetricLevelDeviation: {Kind: LimitBand, Value: 4},
		MetricCrossLevel:     {Kind: LimitBand, Value: 3},
		MetricPlanarity:      {Kind: LimitBelow, Value: 3},
		MetricStraightness:   {Kind: LimitBelow, Value: 3},
		MetricLongitudinal:   {Kind: LimitBand, Value: 1.2},
		MetricGuardRail:      {Kind: LimitBelow, Value: 10},
		MetricJointStep:      {Kind: LimitBand, Value: 9},
	}
}

// Field is one named metric value of a row.
type Field struct {
	Name  string
	Value float64
}

// Measured is implemented by the derived row types.
type Measured interface {
	RowIndex() int
	Distance() float64
	Fields() []Field
}

// Exceedance is a single field value outside its limit.
type Exceedance struct {
	Index     int     `json:"index"`
	Travelled float64 `json:"travelled"`
	Field     string  `json:"field"`
	Value     float64 `json:"value"`
}

// FindExceedances scans rows for field values that break limit.
func FindExceedances[R Measured](rows []R, limit Limit) []Exceedance {
	var out []Exceedance
	for _, r := range rows {
		for _, f := range r.Fields() {
			if limit.Exceeds(f.Value) {
				out = append(out, Exceedance{
					Index:     r.RowIndex(),
					Travelled: r.Distance(),
					Field:     f.Name,
					Value:     f.Value,
				})
			}
		}
	}
	return out
}
