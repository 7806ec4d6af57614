package sta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
)

func distances[R Locatable[R]](rows []R) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Distance()
	}
	return out
}

func TestProject_Rows(t *testing.T) {
	t.Parallel()

	rows := []track.Row{{Index: 0, Travelled: 0, Level1: 1}, {Index: 1, Travelled: 2.5, Level1: 2}}
	p := Project(rows, 100)

	assert.Equal(t, []float64{100, 102.5}, distances(p.Rows()))
	assert.Equal(t, []float64{0, 2.5}, distances(rows), "input must not change")
	assert.Equal(t, []float64{0, 2.5}, distances(p.Base()))
	assert.Equal(t, 100.0, p.Offset())
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 2.0, p.Rows()[1].Level1)
}

func TestProject_NoDoubleApplication(t *testing.T) {
	t.Parallel()

	rows := []analysis.PairRow{{Travelled: 1}, {Travelled: 2}}
	p := Project(rows, 10)

	same := p.Reproject(10)
	assert.Equal(t, p.Rows(), same.Rows())

	moved := p.Reproject(-1)
	assert.Equal(t, []float64{0, 1}, distances(moved.Rows()))
	assert.Equal(t, []float64{1, 2}, distances(moved.Reproject(0).Rows()))
}

func TestProject_InverseRestoresBase(t *testing.T) {
	t.Parallel()

	rows := []analysis.PlanarityRow{{Index: 4, Travelled: 4.5, PL: 2}}
	p := Project(rows, -3.25)
	back := Project(p.Rows(), 3.25)
	assert.Equal(t, rows, back.Rows())
}

func TestProject_StraightnessRows(t *testing.T) {
	rows := []analysis.StraightnessRow{{Travelled: 0.5, A: 1}}
	p := Project(rows, 2)
	p.Rows()[0].A = 99
	assert.Equal(t, 1.0, p.Rows()[0].A, "Rows returns a copy")
	assert.Equal(t, 2.5, p.Rows()[0].Travelled)
}
