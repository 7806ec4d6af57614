package analysis

import (
	"math"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// PairRow is a left/right rail metric at one position.
type PairRow struct {
	Index     int     `json:"Index"`
	Travelled float64 `json:"Travelled"`
	Left      float64 `json:"Left"`
	Right     float64 `json:"Right"`
}

func (r PairRow) RowIndex() int     { return r.Index }
func (r PairRow) Distance() float64 { return r.Travelled }

func (r PairRow) AtDistance(d float64) PairRow {
	r.Travelled = d
	return r
}

// Fields lists the metric values for limit checks.
func (r PairRow) Fields() []Field {
	return []Field{{Name: "Left", Value: r.Left}, {Name: "Right", Value: r.Right}}
}

// CrossLevel selects Left=Level2 and Right=Level1 for each row.
func CrossLevel(rows []track.Row, corr *track.ScaleOffset) []PairRow {
	return pairs(rows, corr, func(r track.Row) (float64, float64) {
		return r.Level2, r.Level1
	})
}

// LevelDeviation computes Left=Level6-Level2 and Right=Level5-Level1.
func LevelDeviation(rows []track.Row, corr *track.ScaleOffset) []PairRow {
	return pairs(rows, corr, func(r track.Row) (float64, float64) {
		return r.Level6 - r.Level2, r.Level5 - r.Level1
	})
}

func pairs(rows []track.Row, corr *track.ScaleOffset, pick func(track.Row) (float64, float64)) []PairRow {
	out := make([]PairRow, len(rows))
	for i, r := range rows {
		l, rt := pick(r)
		out[i] = PairRow{
			Index:     r.Index,
			Travelled: r.Travelled,
			Left:      track.ApplyOptional(corr, l),
			Right:     track.ApplyOptional(corr, rt),
		}
	}
	return out
}

// minTravelled returns the smallest finite Travelled, or +Inf if none.
func minTravelled(rows []track.Row) float64 {
	m := math.Inf(1)
	for _, r := range rows {
		if !math.IsNaN(r.Travelled) && !math.IsInf(r.Travelled, 0) && r.Travelled < m {
			m = r.Travelled
		}
	}
	return m
}
