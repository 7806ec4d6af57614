// Package sta shifts the displayed distance of any row collection by a
// constant station offset without touching the underlying rows.
package sta

// Locatable is a row type that can report and move its distance.
type Locatable[R any] interface {
	Distance() float64
	AtDistance(d float64) R
}

// Projection is a read-time view of rows shifted by Offset metres. The base
// rows are kept alongside, so reprojecting never stacks offsets.
type Projection[R Locatable[R]] struct {
	base    []R
	shifted []R
	offset  float64
}

// Project returns rows viewed with Travelled' = Travelled + offset. A
// negative offset shifts the other way. rows is copied, never modified.
func Project[R Locatable[R]](rows []R, offset float64) Projection[R] {
	base := make([]R, len(rows))
	copy(base, rows)
	return Projection[R]{base: base, shifted: shift(base, offset), offset: offset}
}

// Rows returns the shifted rows. Callers may modify the returned slice.
func (p Projection[R]) Rows() []R {
	out := make([]R, len(p.shifted))
	copy(out, p.shifted)
	return out
}

// Base returns the rows as they were before projection.
func (p Projection[R]) Base() []R {
	out := make([]R, len(p.base))
	copy(out, p.base)
	return out
}

// Offset returns the applied offset.
func (p Projection[R]) Offset() float64 { return p.offset }

// Reproject returns a projection of the same base rows with a new offset.
// Reprojecting with the current offset yields an identical view.
func (p Projection[R]) Reproject(offset float64) Projection[R] {
	return Projection[R]{base: p.base, shifted: shift(p.base, offset), offset: offset}
}

// Len returns the number of rows.
func (p Projection[R]) Len() int { return len(p.base) }

func shift[R Locatable[R]](rows []R, offset float64) []R {
	out := make([]R, len(rows))
	for i, r := range rows {
		if offset == 0 {
			out[i] = r
			continue
		}
		out[i] = r.AtDistance(r.Distance() + offset)
	}
	return out
}
