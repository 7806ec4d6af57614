package track

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Finite returns the finite values of xs in order.
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// SortedCopy returns xs sorted ascending without touching xs.
func SortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Quantile returns the p-quantile of sorted, interpolating linearly between
// the two ranks around p*(n-1). sorted must be ascending and non-empty.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median returns the middle value of xs, or the mean of the two central
// values for an even count. It returns NaN for empty input.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	s := SortedCopy(xs)
	mid := n / 2
	if n%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// PopStdDev is the population standard deviation (divide by N). It is
// exactly 0 for fewer than two values or when every value is identical.
func PopStdDev(xs []float64) float64 {
	if len(xs) <= 1 {
		return 0
	}
	if floats.Min(xs) == floats.Max(xs) {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

// Summary describes the finite values of one channel.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Summarize computes a Summary per channel. Channels with no finite values
// are reported as the zero Summary.
func Summarize(rows []Row, channels []Channel) map[Channel]Summary {
	out := make(map[Channel]Summary, len(channels))
	for _, ch := range channels {
		vals := Finite(Column(rows, ch))
		if len(vals) == 0 {
			out[ch] = Summary{}
			continue
		}
		out[ch] = Summary{
			Count:  len(vals),
			Min:    floats.Min(vals),
			Median: Median(vals),
			Max:    floats.Max(vals),
			Mean:   stat.Mean(vals, nil),
			Std:    PopStdDev(vals),
		}
	}
	return out
}
