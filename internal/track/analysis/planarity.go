package analysis

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
)

// Rigid-body corner offsets in millimetres.
const (
	HalfWheelbase = 1500.0
	HalfGauge     = 750.0
)

// degenerateEps bounds the normal length and the plane's z coefficient
// below which a plane is treated as undefined.
const degenerateEps = 1e-12

// PlanaritySettings controls the station aggregation that feeds the
// four-point model.
type PlanaritySettings struct {
	Interval float64      `json:"interval"`
	Method   track.Method `json:"method"`
	EMASpan  int          `json:"emaSpan"`
}

// DefaultPlanaritySettings returns 3 m median stations.
func DefaultPlanaritySettings() PlanaritySettings {
	return PlanaritySettings{Interval: 3.0, Method: track.MethodMedian, EMASpan: 5}
}

// Planarity validation messages.
const (
	MsgPlanarityInterval = "Planarity interval must be greater than 0"
	MsgPlanarityMethod   = "Planarity method must be one of: median, mean, ema"
	MsgPlanarityEMASpan  = "Planarity EMA span must be at least 1"
)

// Validate returns a *track.ValidationError listing every violated rule.
func (s PlanaritySettings) Validate() error {
	var msgs []string
	if !(s.Interval > 0) {
		msgs = append(msgs, MsgPlanarityInterval)
	}
	switch s.Method {
	case track.MethodMedian, track.MethodMean:
	case track.MethodEMA:
		if s.EMASpan < 1 {
			msgs = append(msgs, MsgPlanarityEMASpan)
		}
	default:
		msgs = append(msgs, MsgPlanarityMethod)
	}
	if len(msgs) > 0 {
		return track.Invalid(msgs...)
	}
	return nil
}

// PlanarityRow pairs a station with its predecessor. The Ref fields repeat
// the raw corner heights for the reference columns of the report.
type PlanarityRow struct {
	Index     int     `json:"Index"`
	Travelled float64 `json:"Travelled"`
	Level1    float64 `json:"Level1"`
	Level2    float64 `json:"Level2"`

	FLH float64 `json:"FLH"`
	FRH float64 `json:"FRH"`
	RLH float64 `json:"RLH"`
	RRH float64 `json:"RRH"`

	FLHRef float64 `json:"FLH_ref"`
	FRHRef float64 `json:"FRH_ref"`
	RLHRef float64 `json:"RLH_ref"`
	RRHRef float64 `json:"RRH_ref"`

	PL float64 `json:"PL"`
}

func (r PlanarityRow) RowIndex() int     { return r.Index }
func (r PlanarityRow) Distance() float64 { return r.Travelled }

func (r PlanarityRow) AtDistance(d float64) PlanarityRow {
	r.Travelled = d
	return r
}

// Fields lists the metric values for limit checks.
func (r PlanarityRow) Fields() []Field {
	return []Field{{Name: "PL", Value: r.PL}}
}

// station is one aggregated position on the two level channels.
type station struct {
	index     int
	travelled float64
	level1    float64
	level2    float64
}

// Planarity aggregates Level1/Level2 into stations of s.Interval metres from
// the smallest Travelled, then for each station and its predecessor takes
// the largest vertical deviation of any corner from the plane through the
// other three. corr, when non-nil, is applied to that deviation. The first
// station produces no row.
func Planarity(ctx context.Context, rows []track.Row, s PlanaritySettings, corr *track.ScaleOffset) ([]PlanarityRow, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []PlanarityRow{}, nil
	}

	buckets, _ := aggregation.Partition(rows, minTravelled(rows), s.Interval)
	stations := make([]station, 0, len(buckets))
	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stations = append(stations, station{
			index:     b.Rows[0].Index,
			travelled: b.Midpoint(),
			level1:    aggregation.Reduce(s.Method, track.Column(b.Rows, track.Level1), s.EMASpan),
			level2:    aggregation.Reduce(s.Method, track.Column(b.Rows, track.Level2), s.EMASpan),
		})
	}
	if len(stations) < 2 {
		return []PlanarityRow{}, nil
	}

	out := make([]PlanarityRow, 0, len(stations)-1)
	for i := 1; i < len(stations); i++ {
		cur, prev := stations[i], stations[i-1]
		flh, frh, rlh, rrh := cur.level2, cur.level1, prev.level2, prev.level1
		pl := FourPointPlanarity(flh, frh, rlh, rrh)
		out = append(out, PlanarityRow{
			Index:     cur.index,
			Travelled: cur.travelled,
			Level1:    cur.level1,
			Level2:    cur.level2,
			FLH:       flh,
			FRH:       frh,
			RLH:       rlh,
			RRH:       rrh,
			FLHRef:    flh,
			FRHRef:    frh,
			RLHRef:    rlh,
			RRHRef:    rrh,
			PL:        track.ApplyOptional(corr, pl),
		})
	}
	return out, nil
}

// FourPointPlanarity places the four corner heights on the rigid body and
// returns the largest absolute deviation of a corner from the plane through
// the remaining three.
func FourPointPlanarity(flh, frh, rlh, rrh float64) float64 {
	fl := r3.Vec{X: HalfWheelbase, Y: HalfGauge, Z: flh}
	fr := r3.Vec{X: HalfWheelbase, Y: -HalfGauge, Z: frh}
	rl := r3.Vec{X: -HalfWheelbase, Y: HalfGauge, Z: rlh}
	rr := r3.Vec{X: -HalfWheelbase, Y: -HalfGauge, Z: rrh}

	devs := [4]float64{
		planeThrough(fr, rl, rr).verticalDeviation(fl),
		planeThrough(fl, rl, rr).verticalDeviation(fr),
		planeThrough(fl, fr, rr).verticalDeviation(rl),
		planeThrough(fl, fr, rl).verticalDeviation(rr),
	}
	maxDev := 0.0
	for _, d := range devs {
		maxDev = math.Max(maxDev, math.Abs(d))
	}
	return maxDev
}

// plane is n·p + d = 0.
type plane struct {
	n r3.Vec
	d float64
}

func planeThrough(p1, p2, p3 r3.Vec) plane {
	n := r3.Cross(r3.Sub(p2, p1), r3.Sub(p3, p1))
	if r3.Norm(n) > degenerateEps {
		n = r3.Unit(n)
	}
	return plane{n: n, d: -r3.Dot(n, p1)}
}

// verticalDeviation is p.Z minus the plane height at (p.X, p.Y), or 0 when
// the plane is vertical or undefined.
func (pl plane) verticalDeviation(p r3.Vec) float64 {
	if math.Abs(pl.n.Z) < degenerateEps {
		return 0
	}
	z := -(pl.n.X*p.X + pl.n.Y*p.Y + pl.d) / pl.n.Z
	return p.Z - z
}
