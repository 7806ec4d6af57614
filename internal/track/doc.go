// Package track owns the shared row model and settings for the
// track-geometry pipeline.
//
// Responsibilities: sample rows, channel access, outlier/correction/
// aggregation settings and their validation, channel summaries.
// Key types: Row, Channel, OutlierPolicy, Correction, AggregationSettings.
//
// Dependency rule: track never imports its sub-packages (outlier,
// correction, aggregation, analysis, sta, pipeline); they import track.
package track
