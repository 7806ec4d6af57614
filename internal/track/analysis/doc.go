// Package analysis derives track-quality metrics from corrected, usually
// aggregated, rows: straightness, planarity, cross-level and level
// deviation, plus reference-limit checks over any of them.
//
// Every function returns new row collections and leaves its input alone.
// Degenerate input (empty windows, a single station, a flat plane normal)
// yields fewer rows or a zero deviation, never an error.
package analysis
