package track

import "fmt"

// OutlierSettings configures outlier detection for one channel.
type OutlierSettings struct {
	UseIQR          bool    `json:"useIQR"`
	IQRMultiplier   float64 `json:"iqrMultiplier" validate:"gt=0"`
	UseZScore       bool    `json:"useZScore"`
	ZScoreThreshold float64 `json:"zScoreThreshold" validate:"gt=0"`
}

// DefaultOutlierSettings enables both tests with the usual 1.5·IQR fences
// and a 3σ Z-score threshold.
func DefaultOutlierSettings() OutlierSettings {
	return OutlierSettings{
		UseIQR:          true,
		IQRMultiplier:   1.5,
		UseZScore:       true,
		ZScoreThreshold: 3.0,
	}
}

// Enabled reports whether any test is switched on.
func (s OutlierSettings) Enabled() bool {
	return s.UseIQR || s.UseZScore
}

// OutlierMode selects how an OutlierPolicy resolves per-channel settings.
type OutlierMode string

const (
	OutlierModeIndividual OutlierMode = "individual"
	OutlierModeBulk       OutlierMode = "bulk"
)

// OutlierPolicy is either Individual (a settings value per channel) or Bulk
// (one settings value for every channel). Build it with IndividualPolicy or
// BulkPolicy; the zero value detects nothing.
type OutlierPolicy struct {
	mode       OutlierMode
	bulk       OutlierSettings
	perChannel map[Channel]OutlierSettings
}

// IndividualPolicy returns a policy that applies settings only to the
// channels present in m. m is copied.
func IndividualPolicy(m map[Channel]OutlierSettings) OutlierPolicy {
	cp := make(map[Channel]OutlierSettings, len(m))
	for ch, s := range m {
		cp[ch] = s
	}
	return OutlierPolicy{mode: OutlierModeIndividual, perChannel: cp}
}

// BulkPolicy returns a policy that applies s to every numeric channel.
func BulkPolicy(s OutlierSettings) OutlierPolicy {
	return OutlierPolicy{mode: OutlierModeBulk, bulk: s}
}

// Mode returns the policy variant, or "" for the zero value.
func (p OutlierPolicy) Mode() OutlierMode { return p.mode }

// For returns the effective settings for ch and whether ch is covered.
func (p OutlierPolicy) For(ch Channel) (OutlierSettings, bool) {
	switch p.mode {
	case OutlierModeBulk:
		return p.bulk, ch.Valid()
	case OutlierModeIndividual:
		s, ok := p.perChannel[ch]
		return s, ok
	}
	return OutlierSettings{}, false
}

// Validate checks every settings value the policy can return.
func (p OutlierPolicy) Validate() error {
	switch p.mode {
	case OutlierModeBulk:
		return ValidateOutlierSettings(p.bulk)
	case OutlierModeIndividual:
		for ch, s := range p.perChannel {
			if !ch.Valid() {
				return fmt.Errorf("unknown channel %q", ch)
			}
			if err := ValidateOutlierSettings(s); err != nil {
				return fmt.Errorf("channel %s: %w", ch, err)
			}
		}
		return nil
	case "":
		return nil
	}
	return fmt.Errorf("unknown outlier mode %q", p.mode)
}

// ScaleOffset is an affine correction v*Scale+Offset. The JSON names match
// the correction document exchanged with the front end.
type ScaleOffset struct {
	Scale  float64 `json:"Scaler"`
	Offset float64 `json:"offset"`
}

// Identity is the no-op correction.
var Identity = ScaleOffset{Scale: 1}

// Apply returns v*Scale+Offset. Non-finite inputs propagate.
func (c ScaleOffset) Apply(v float64) float64 {
	return v*c.Scale + c.Offset
}

// Invert returns (v-Offset)/Scale. ok is false when Scale is zero.
func (c ScaleOffset) Invert(v float64) (float64, bool) {
	if c.Scale == 0 {
		return 0, false
	}
	return (v - c.Offset) / c.Scale, true
}

// ApplyOptional applies c when it is non-nil.
func ApplyOptional(c *ScaleOffset, v float64) float64 {
	if c == nil {
		return v
	}
	return c.Apply(v)
}

// Correction maps channels to their scale/offset. Channels not in the map
// pass through unchanged.
type Correction map[Channel]ScaleOffset

// DefaultCorrection is the identity for every numeric channel except Level3,
// which the recorder reports in hundredths.
func DefaultCorrection() Correction {
	c := make(Correction, len(NumericChannels))
	for _, ch := range NumericChannels {
		c[ch] = Identity
	}
	c[Level3] = ScaleOffset{Scale: 100}
	return c
}

// Method is an aggregation reducer.
type Method string

const (
	MethodMedian Method = "median"
	MethodMean   Method = "mean"
	MethodEMA    Method = "ema"
)

// AggregationSettings configures distance-interval aggregation.
type AggregationSettings struct {
	Interval float64 `json:"interval" validate:"gt=0.1"`
	Method   Method  `json:"method" validate:"oneof=median mean ema"`
	EMASpan  int     `json:"emaSpan"`
}

// DefaultAggregationSettings returns 1 m median buckets with an EMA span of 5.
func DefaultAggregationSettings() AggregationSettings {
	return AggregationSettings{Interval: 1.0, Method: MethodMedian, EMASpan: 5}
}
