// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/trackgeometry/internal/track"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(tb testing.TB, err error) {
	tb.Helper()
	if err == nil {
		tb.Fatal("expected error, got nil")
	}
}

// AssertApprox checks |got-want| <= tol. NaN only matches NaN.
func AssertApprox(tb testing.TB, name string, got, want, tol float64) {
	tb.Helper()
	if math.IsNaN(want) && math.IsNaN(got) {
		return
	}
	if math.IsNaN(got) || math.IsNaN(want) || math.Abs(got-want) > tol {
		tb.Errorf("%s = %v, want %v (±%v)", name, got, want, tol)
	}
}

// RowsApprox compares float fields within an absolute tolerance and treats
// NaNs as equal.
func RowsApprox(tol float64) cmp.Options {
	return cmp.Options{cmpopts.EquateApprox(0, tol), cmpopts.EquateNaNs()}
}

// AssertRowsApprox diffs two row slices with RowsApprox.
func AssertRowsApprox(tb testing.TB, got, want []track.Row, tol float64) {
	tb.Helper()
	if diff := cmp.Diff(want, got, RowsApprox(tol)); diff != "" {
		tb.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

// RampRows returns n rows spaced spacing metres apart in which every
// numeric channel equals the row number times its 1-based channel position.
func RampRows(n int, spacing float64) []track.Row {
	rows := make([]track.Row, n)
	for i := range rows {
		rows[i] = track.Row{Index: i, Travelled: float64(i) * spacing}
		for k, ch := range track.NumericChannels {
			rows[i].SetValue(ch, float64(i*(k+1)))
		}
	}
	return rows
}

// ConstantRows returns n rows spaced spacing metres apart with every numeric
// channel set to v.
func ConstantRows(n int, spacing, v float64) []track.Row {
	rows := make([]track.Row, n)
	for i := range rows {
		rows[i] = track.Row{Index: i, Travelled: float64(i) * spacing}
		for _, ch := range track.NumericChannels {
			rows[i].SetValue(ch, v)
		}
	}
	return rows
}
