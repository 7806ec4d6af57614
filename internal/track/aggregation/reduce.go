package aggregation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// Median returns the middle value, or the mean of the two central values.
func Median(values []float64) float64 {
	return track.Median(values)
}

// Mean returns the arithmetic mean, or NaN for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// EMA runs an exponential moving average over values in order, seeded with
// the first value, with α = 2/(span+1). A span below 1 is treated as 1.
func EMA(values []float64, span int) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if span < 1 {
		span = 1
	}
	alpha := 2.0 / float64(span+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// Reduce dispatches to the reducer for method. Unknown methods fall back to
// the median.
func Reduce(method track.Method, values []float64, span int) float64 {
	switch method {
	case track.MethodMean:
		return Mean(values)
	case track.MethodEMA:
		return EMA(values, span)
	default:
		return Median(values)
	}
}
