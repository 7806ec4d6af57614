package analysis

import (
	"encoding/json"

	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
)

// StraightnessSettings selects the window width and the two rail channels.
type StraightnessSettings struct {
	Interval float64       `json:"interval"`
	ChannelA track.Channel `json:"channelA"`
	ChannelB track.Channel `json:"channelB"`
}

// DefaultStraightnessSettings uses 1 m windows over Level3 and Level4.
func DefaultStraightnessSettings() StraightnessSettings {
	return StraightnessSettings{Interval: 1.0, ChannelA: track.Level3, ChannelB: track.Level4}
}

// Straightness validation messages.
const (
	MsgStraightnessInterval = "Straightness interval must be greater than 0"
	MsgStraightnessChannel  = "Straightness channels must be numeric channels"
	MsgStraightnessSame     = "Straightness channels must differ"
)

// withDefaults fills empty channels with Level3 and Level4.
func (s StraightnessSettings) withDefaults() StraightnessSettings {
	if s.ChannelA == "" {
		s.ChannelA = track.Level3
	}
	if s.ChannelB == "" {
		s.ChannelB = track.Level4
	}
	return s
}

// Validate returns a *track.ValidationError listing every violated rule.
// Empty channels mean Level3 and Level4.
func (s StraightnessSettings) Validate() error {
	s = s.withDefaults()
	var msgs []string
	if !(s.Interval > 0) {
		msgs = append(msgs, MsgStraightnessInterval)
	}
	if !s.ChannelA.Valid() || !s.ChannelB.Valid() {
		msgs = append(msgs, MsgStraightnessChannel)
	} else if s.ChannelA == s.ChannelB {
		msgs = append(msgs, MsgStraightnessSame)
	}
	if len(msgs) > 0 {
		return track.Invalid(msgs...)
	}
	return nil
}

// StraightnessRow is the dispersion of both channels in one window. It
// encodes A and B under the names of the channels they were computed from.
type StraightnessRow struct {
	Index     int           `json:"Index"`
	Travelled float64       `json:"Travelled"`
	A         float64       `json:"-"`
	B         float64       `json:"-"`
	ChannelA  track.Channel `json:"-"`
	ChannelB  track.Channel `json:"-"`
}

func (r StraightnessRow) names() (string, string) {
	a, b := r.ChannelA, r.ChannelB
	if a == "" {
		a = track.Level3
	}
	if b == "" {
		b = track.Level4
	}
	return string(a), string(b)
}

// MarshalJSON writes {"Index", "Travelled", <ChannelA>, <ChannelB>}.
func (r StraightnessRow) MarshalJSON() ([]byte, error) {
	a, b := r.names()
	return json.Marshal(map[string]any{
		"Index":     r.Index,
		"Travelled": r.Travelled,
		a:           r.A,
		b:           r.B,
	})
}

func (r StraightnessRow) RowIndex() int     { return r.Index }
func (r StraightnessRow) Distance() float64 { return r.Travelled }

func (r StraightnessRow) AtDistance(d float64) StraightnessRow {
	r.Travelled = d
	return r
}

// Fields lists the metric values for limit checks.
func (r StraightnessRow) Fields() []Field {
	a, b := r.names()
	return []Field{{Name: a, Value: r.A}, {Name: b, Value: r.B}}
}

// Straightness computes the population standard deviation of both channels
// in successive windows of s.Interval metres, starting at the smallest
// Travelled. Empty windows emit nothing. corr, when non-nil, is applied to
// the standard deviations.
func Straightness(rows []track.Row, s StraightnessSettings, corr *track.ScaleOffset) ([]StraightnessRow, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.withDefaults()
	if len(rows) == 0 {
		return []StraightnessRow{}, nil
	}

	buckets, _ := aggregation.Partition(rows, minTravelled(rows), s.Interval)
	out := make([]StraightnessRow, 0, len(buckets))
	for _, b := range buckets {
		a := track.PopStdDev(track.Column(b.Rows, s.ChannelA))
		bb := track.PopStdDev(track.Column(b.Rows, s.ChannelB))
		out = append(out, StraightnessRow{
			Index:     b.Rows[0].Index,
			Travelled: b.Midpoint(),
			A:         track.ApplyOptional(corr, a),
			B:         track.ApplyOptional(corr, bb),
			ChannelA:  s.ChannelA,
			ChannelB:  s.ChannelB,
		})
	}
	return out, nil
}
