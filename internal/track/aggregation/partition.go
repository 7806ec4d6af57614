package aggregation

import (
	"math"
	"sort"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// Bucket is one half-open distance interval [Start, End) and the rows that
// fall into it, in stable Travelled order.
type Bucket struct {
	Index int
	Start float64
	End   float64
	Rows  []track.Row
}

// Midpoint returns (Start+End)/2.
func (b Bucket) Midpoint() float64 { return (b.Start + b.End) / 2 }

// maxBucketIndex bounds (Travelled-origin)/interval so bucket indices stay
// exact in float64 and never overflow int.
const maxBucketIndex = 1 << 52

// Layout describes how rows were split by Partition.
type Layout struct {
	Origin   float64
	Interval float64
	Total    int // number of buckets, empty ones included
	Dropped  int // rows with non-finite, out-of-range or pre-origin Travelled
}

// SortByTravelled returns a copy of rows stable-sorted by Travelled, so
// samples at the same distance keep their recorded order.
func SortByTravelled(rows []track.Row) []track.Row {
	out := track.Clone(rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Travelled < out[j].Travelled })
	return out
}

// Partition groups rows into buckets of width interval starting at origin:
// bucket k holds origin+k·interval ≤ Travelled < origin+(k+1)·interval.
// There are max(1, ceil((max-origin)/interval)) buckets, and a sample exactly
// on the final edge belongs to the last bucket. Rows are filtered before
// sorting, so non-finite distances never disturb the order. Only non-empty
// buckets are returned. interval must be positive.
func Partition(rows []track.Row, origin, interval float64) ([]Bucket, Layout) {
	layout := Layout{Origin: origin, Interval: interval}
	if len(rows) == 0 || !(interval > 0) {
		return nil, layout
	}

	kept := make([]track.Row, 0, len(rows))
	maxT := math.Inf(-1)
	for _, r := range rows {
		t := r.Travelled
		if math.IsNaN(t) || math.IsInf(t, 0) || t < origin || (t-origin)/interval >= maxBucketIndex {
			layout.Dropped++
			continue
		}
		kept = append(kept, r)
		if t > maxT {
			maxT = t
		}
	}
	if len(kept) == 0 {
		return nil, layout
	}

	total := int(math.Ceil((maxT - origin) / interval))
	if total < 1 {
		total = 1
	}
	layout.Total = total

	var buckets []Bucket
	for _, r := range SortByTravelled(kept) {
		k := int(math.Floor((r.Travelled - origin) / interval))
		if k >= total {
			k = total - 1
		}
		if n := len(buckets); n == 0 || buckets[n-1].Index != k {
			buckets = append(buckets, Bucket{
				Index: k,
				Start: origin + float64(k)*interval,
				End:   origin + float64(k+1)*interval,
			})
		}
		b := &buckets[len(buckets)-1]
		b.Rows = append(b.Rows, r)
	}
	return buckets, layout
}
