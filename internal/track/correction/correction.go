// Package correction applies per-channel scale/offset corrections.
package correction

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// ErrZeroScale is returned by Invert for a correction that cannot be undone.
var ErrZeroScale = errors.New("correction scale is zero")

// Apply returns a copy of rows with out[ch] = in[ch]*Scale+Offset for each
// channel in corr. Other channels pass through, and non-finite values
// propagate unchanged.
func Apply(rows []track.Row, corr track.Correction) []track.Row {
	out := track.Clone(rows)
	if len(corr) == 0 {
		return out
	}
	channels := configured(corr)
	for i := range out {
		for _, ch := range channels {
			v, _ := out[i].Value(ch)
			out[i].SetValue(ch, corr[ch].Apply(v))
		}
	}
	return out
}

// Invert undoes Apply. It fails without touching anything if any
// configured scale is zero.
func Invert(rows []track.Row, corr track.Correction) ([]track.Row, error) {
	channels := configured(corr)
	for _, ch := range channels {
		if corr[ch].Scale == 0 {
			return nil, fmt.Errorf("channel %s: %w", ch, ErrZeroScale)
		}
	}
	out := track.Clone(rows)
	for i := range out {
		for _, ch := range channels {
			v, _ := out[i].Value(ch)
			inv, _ := corr[ch].Invert(v)
			out[i].SetValue(ch, inv)
		}
	}
	return out, nil
}

// configured returns the numeric channels present in corr, in column order.
// Unknown keys are ignored.
func configured(corr track.Correction) []track.Channel {
	out := make([]track.Channel, 0, len(corr))
	for _, ch := range track.NumericChannels {
		if _, ok := corr[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
