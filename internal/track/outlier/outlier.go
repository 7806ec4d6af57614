// Package outlier flags and replaces outlying channel values using IQR
// fences and Z-scores computed over the whole column.
package outlier

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trackgeometry/internal/monitoring"
	"github.com/banshee-data/trackgeometry/internal/track"
)

// ColumnStats holds the whole-column statistics both tests need. They are
// computed once per Detector over the finite values of the column.
type ColumnStats struct {
	Count int
	Q1    float64
	Q3    float64
	IQR   float64
	Mean  float64
	Std   float64 // population
}

// ComputeStats builds ColumnStats from values, ignoring non-finite entries.
func ComputeStats(values []float64) ColumnStats {
	finite := track.Finite(values)
	cs := ColumnStats{Count: len(finite)}
	if cs.Count == 0 {
		return cs
	}
	sorted := track.SortedCopy(finite)
	cs.Q1 = track.Quantile(sorted, 0.25)
	cs.Q3 = track.Quantile(sorted, 0.75)
	cs.IQR = cs.Q3 - cs.Q1
	cs.Mean, cs.Std = stat.PopMeanStdDev(finite, nil)
	if cs.Count == 1 {
		cs.Std = 0
	}
	return cs
}

// IsOutlier applies the enabled tests to v. Both enabled means either
// failing flags the value. Non-finite values are never flagged.
func (cs ColumnStats) IsOutlier(v float64, s track.OutlierSettings) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if s.UseIQR {
		lo := cs.Q1 - s.IQRMultiplier*cs.IQR
		hi := cs.Q3 + s.IQRMultiplier*cs.IQR
		if v < lo || v > hi {
			return true
		}
	}
	if s.UseZScore && cs.Std > 0 {
		if math.Abs(v-cs.Mean)/cs.Std > s.ZScoreThreshold {
			return true
		}
	}
	return false
}

// ChannelReport summarises one channel's pass.
type ChannelReport struct {
	Flagged  int  `json:"flagged"`
	Replaced int  `json:"replaced"`
	Skipped  bool `json:"skipped"`
}

// Report summarises a Replace call.
type Report struct {
	Channels map[track.Channel]ChannelReport `json:"channels"`
}

// Total returns the number of replaced values over all channels.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Channels {
		n += c.Replaced
	}
	return n
}

// Detector caches column statistics and outlier masks for one row
// collection and policy. Build a new Detector when either changes.
type Detector struct {
	rows   []track.Row
	policy track.OutlierPolicy
	stats  map[track.Channel]ColumnStats
	flags  map[track.Channel][]bool
}

// NewDetector computes statistics and masks for every channel the policy
// enables. rows is not modified.
func NewDetector(rows []track.Row, policy track.OutlierPolicy) *Detector {
	d := &Detector{
		rows:   rows,
		policy: policy,
		stats:  make(map[track.Channel]ColumnStats),
		flags:  make(map[track.Channel][]bool),
	}
	for _, ch := range track.NumericChannels {
		s, ok := policy.For(ch)
		if !ok || !s.Enabled() {
			continue
		}
		col := track.Column(rows, ch)
		cs := ComputeStats(col)
		d.stats[ch] = cs
		mask := make([]bool, len(col))
		for i, v := range col {
			mask[i] = cs.IsOutlier(v, s)
		}
		d.flags[ch] = mask
	}
	return d
}

// Stats returns the cached statistics for ch.
func (d *Detector) Stats(ch track.Channel) (ColumnStats, bool) {
	cs, ok := d.stats[ch]
	return cs, ok
}

// Flags returns the outlier mask for ch, or nil when ch is not evaluated.
func (d *Detector) Flags(ch track.Channel) []bool {
	return d.flags[ch]
}

// Replace returns a copy of the rows with every flagged value replaced.
func (d *Detector) Replace() ([]track.Row, Report) {
	out := track.Clone(d.rows)
	rep := Report{Channels: make(map[track.Channel]ChannelReport)}

	for _, ch := range track.NumericChannels {
		mask, ok := d.flags[ch]
		if !ok {
			continue
		}
		cr := ChannelReport{}
		for _, f := range mask {
			if f {
				cr.Flagged++
			}
		}
		if d.stats[ch].Count < 2 {
			cr.Skipped = true
			rep.Channels[ch] = cr
			continue
		}
		if cr.Flagged > 0 {
			cr.Replaced = replaceChannel(out, ch, mask)
			if cr.Replaced == 0 {
				cr.Skipped = true
			}
		}
		rep.Channels[ch] = cr
	}

	if n := rep.Total(); n > 0 {
		monitoring.Logf("[outlier] replaced %d values across %d rows", n, len(out))
	}
	return out, rep
}

// Replace is shorthand for NewDetector(rows, policy).Replace().
func Replace(rows []track.Row, policy track.OutlierPolicy) ([]track.Row, Report) {
	return NewDetector(rows, policy).Replace()
}

// replaceChannel rewrites flagged values of ch in rows and returns how many
// it replaced. Anchors are finite, unflagged samples.
func replaceChannel(rows []track.Row, ch track.Channel, mask []bool) int {
	n := len(rows)
	isAnchor := func(i int) bool {
		if mask[i] {
			return false
		}
		v, _ := rows[i].Value(ch)
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	}

	// prev[i] / next[i]: nearest anchor index before / after i, or -1.
	prev := make([]int, n)
	next := make([]int, n)
	last := -1
	for i := 0; i < n; i++ {
		prev[i] = last
		if isAnchor(i) {
			last = i
		}
	}
	last = -1
	for i := n - 1; i >= 0; i-- {
		next[i] = last
		if isAnchor(i) {
			last = i
		}
	}

	// Values are read from anchors only, which are never rewritten, so
	// in-place updates are safe.
	replaced := 0
	for i := 0; i < n; i++ {
		if !mask[i] {
			continue
		}
		p, q := prev[i], next[i]
		var v float64
		switch {
		case p >= 0 && q >= 0:
			v = interpolate(rows, ch, p, q, i)
		case p >= 0:
			v, _ = rows[p].Value(ch)
		case q >= 0:
			v, _ = rows[q].Value(ch)
		default:
			continue
		}
		rows[i].SetValue(ch, v)
		replaced++
	}
	return replaced
}

// interpolate weights by Travelled, falling back to row position when the
// anchors share a distance.
func interpolate(rows []track.Row, ch track.Channel, p, q, i int) float64 {
	vp, _ := rows[p].Value(ch)
	vq, _ := rows[q].Value(ch)
	tp, tq, ti := rows[p].Travelled, rows[q].Travelled, rows[i].Travelled

	frac := math.NaN()
	if tq != tp {
		frac = (ti - tp) / (tq - tp)
	}
	if math.IsNaN(frac) || math.IsInf(frac, 0) {
		frac = float64(i-p) / float64(q-p)
	}
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return vp + (vq-vp)*frac
}
