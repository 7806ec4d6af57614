package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Outlier modes accepted in outlier_mode. "off" skips outlier replacement.
const (
	OutlierModeIndividual = "individual"
	OutlierModeBulk       = "bulk"
	OutlierModeOff        = "off"
)

// OutlierConfig is one outlier settings block. Omitted fields fall back to
// the track defaults.
type OutlierConfig struct {
	UseIQR          *bool    `json:"use_iqr,omitempty"`
	IQRMultiplier   *float64 `json:"iqr_multiplier,omitempty"`
	UseZScore       *bool    `json:"use_zscore,omitempty"`
	ZScoreThreshold *float64 `json:"zscore_threshold,omitempty"`
}

// Settings resolves the block against the track defaults.
func (o *OutlierConfig) Settings() track.OutlierSettings {
	s := track.DefaultOutlierSettings()
	if o == nil {
		return s
	}
	if o.UseIQR != nil {
		s.UseIQR = *o.UseIQR
	}
	if o.IQRMultiplier != nil {
		s.IQRMultiplier = *o.IQRMultiplier
	}
	if o.UseZScore != nil {
		s.UseZScore = *o.UseZScore
	}
	if o.ZScoreThreshold != nil {
		s.ZScoreThreshold = *o.ZScoreThreshold
	}
	return s
}

// CorrectionDocument is the correction profile exchanged with the front
// end: per-channel preprocessing corrections and per-metric analysis
// corrections, both as {"Scaler", "offset"} pairs.
type CorrectionDocument struct {
	Preprocessing map[string]track.ScaleOffset `json:"preprocessing,omitempty"`
	Analysis      map[string]track.ScaleOffset `json:"analysis,omitempty"`
}

// PipelineConfig is the root configuration for a pipeline run.
type PipelineConfig struct {
	// Aggregation
	AggregationInterval *float64 `json:"aggregation_interval,omitempty"`
	AggregationMethod   *string  `json:"aggregation_method,omitempty"`
	AggregationEMASpan  *int     `json:"aggregation_ema_span,omitempty"`

	// Outliers
	OutlierMode     *string                  `json:"outlier_mode,omitempty"`
	OutlierBulk     *OutlierConfig           `json:"outlier_bulk,omitempty"`
	OutlierChannels map[string]OutlierConfig `json:"outlier_channels,omitempty"`

	// Straightness
	StraightnessInterval *float64 `json:"straightness_interval,omitempty"`
	StraightnessChannelA *string  `json:"straightness_channel_a,omitempty"`
	StraightnessChannelB *string  `json:"straightness_channel_b,omitempty"`

	// Planarity
	PlanarityInterval *float64 `json:"planarity_interval,omitempty"`
	PlanarityMethod   *string  `json:"planarity_method,omitempty"`
	PlanarityEMASpan  *int     `json:"planarity_ema_span,omitempty"`

	// Display
	STAOffset *float64 `json:"sta_offset,omitempty"` // metres

	// Background worker
	MaxRetries *int    `json:"max_retries,omitempty"`
	RetryDelay *string `json:"retry_delay,omitempty"` // duration string like "1s"
	QueueSize  *int    `json:"queue_size,omitempty"`

	Corrections *CorrectionDocument `json:"corrections,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
// Use LoadPipelineConfig to load actual values from a file.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/track/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.AggregationInterval != nil || c.AggregationMethod != nil || c.AggregationEMASpan != nil {
		if err := track.ValidateAggregation(c.GetAggregationSettings()).Err(); err != nil {
			return fmt.Errorf("aggregation: %w", err)
		}
	}

	if c.OutlierMode != nil {
		switch *c.OutlierMode {
		case OutlierModeIndividual, OutlierModeBulk, OutlierModeOff:
		default:
			return fmt.Errorf("outlier_mode must be one of individual, bulk, off, got %q", *c.OutlierMode)
		}
	}
	if err := track.ValidateOutlierSettings(c.OutlierBulk.Settings()); err != nil {
		return fmt.Errorf("outlier_bulk: %w", err)
	}
	for name, oc := range c.OutlierChannels {
		if !track.Channel(name).Valid() {
			return fmt.Errorf("outlier_channels: unknown channel %q", name)
		}
		if err := track.ValidateOutlierSettings(oc.Settings()); err != nil {
			return fmt.Errorf("outlier_channels[%s]: %w", name, err)
		}
	}

	if c.StraightnessInterval != nil && !(*c.StraightnessInterval > 0) {
		return fmt.Errorf("straightness_interval must be positive, got %f", *c.StraightnessInterval)
	}
	for _, ch := range []*string{c.StraightnessChannelA, c.StraightnessChannelB} {
		if ch != nil && !track.Channel(*ch).Valid() {
			return fmt.Errorf("unknown straightness channel %q", *ch)
		}
	}

	if c.PlanarityInterval != nil && !(*c.PlanarityInterval > 0) {
		return fmt.Errorf("planarity_interval must be positive, got %f", *c.PlanarityInterval)
	}
	if c.PlanarityMethod != nil {
		switch track.Method(*c.PlanarityMethod) {
		case track.MethodMedian, track.MethodMean, track.MethodEMA:
		default:
			return fmt.Errorf("planarity_method must be one of median, mean, ema, got %q", *c.PlanarityMethod)
		}
	}
	if c.PlanarityEMASpan != nil && *c.PlanarityEMASpan < 1 {
		return fmt.Errorf("planarity_ema_span must be at least 1, got %d", *c.PlanarityEMASpan)
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", *c.MaxRetries)
	}
	if c.RetryDelay != nil && *c.RetryDelay != "" {
		if _, err := time.ParseDuration(*c.RetryDelay); err != nil {
			return fmt.Errorf("invalid retry_delay '%s': %w", *c.RetryDelay, err)
		}
	}
	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}

	if c.Corrections != nil {
		for name := range c.Corrections.Preprocessing {
			if !track.Channel(name).Valid() {
				return fmt.Errorf("corrections.preprocessing: unknown channel %q", name)
			}
		}
		for name := range c.Corrections.Analysis {
			if !analysis.Metric(name).Valid() {
				return fmt.Errorf("corrections.analysis: unknown metric %q", name)
			}
		}
	}

	return nil
}

// GetAggregationSettings returns the aggregation settings with defaults.
func (c *PipelineConfig) GetAggregationSettings() track.AggregationSettings {
	s := track.DefaultAggregationSettings()
	if c.AggregationInterval != nil {
		s.Interval = *c.AggregationInterval
	}
	if c.AggregationMethod != nil {
		s.Method = track.Method(*c.AggregationMethod)
	}
	if c.AggregationEMASpan != nil {
		s.EMASpan = *c.AggregationEMASpan
	}
	return s
}

// GetOutlierMode returns the outlier_mode value or the default (bulk).
func (c *PipelineConfig) GetOutlierMode() string {
	if c.OutlierMode == nil {
		return OutlierModeBulk
	}
	return *c.OutlierMode
}

// GetOutlierPolicy builds the policy for the configured mode. ok is false
// when outlier replacement is switched off.
func (c *PipelineConfig) GetOutlierPolicy() (policy track.OutlierPolicy, ok bool) {
	switch c.GetOutlierMode() {
	case OutlierModeOff:
		return track.OutlierPolicy{}, false
	case OutlierModeIndividual:
		m := make(map[track.Channel]track.OutlierSettings, len(c.OutlierChannels))
		for name, oc := range c.OutlierChannels {
			m[track.Channel(name)] = oc.Settings()
		}
		return track.IndividualPolicy(m), true
	default:
		return track.BulkPolicy(c.OutlierBulk.Settings()), true
	}
}

// GetStraightnessInterval returns the straightness_interval value or the default.
func (c *PipelineConfig) GetStraightnessInterval() float64 {
	if c.StraightnessInterval == nil {
		return 1.0
	}
	return *c.StraightnessInterval
}

// GetStraightnessChannels returns the two straightness channels or Level3/Level4.
func (c *PipelineConfig) GetStraightnessChannels() (a, b track.Channel) {
	a, b = track.Level3, track.Level4
	if c.StraightnessChannelA != nil {
		a = track.Channel(*c.StraightnessChannelA)
	}
	if c.StraightnessChannelB != nil {
		b = track.Channel(*c.StraightnessChannelB)
	}
	return a, b
}

// GetPlanarityInterval returns the planarity_interval value or the default.
func (c *PipelineConfig) GetPlanarityInterval() float64 {
	if c.PlanarityInterval == nil {
		return 3.0
	}
	return *c.PlanarityInterval
}

// GetPlanarityMethod returns the planarity_method value or the default.
func (c *PipelineConfig) GetPlanarityMethod() track.Method {
	if c.PlanarityMethod == nil {
		return track.MethodMedian
	}
	return track.Method(*c.PlanarityMethod)
}

// GetPlanarityEMASpan returns the planarity_ema_span value or the default.
func (c *PipelineConfig) GetPlanarityEMASpan() int {
	if c.PlanarityEMASpan == nil {
		return 5
	}
	return *c.PlanarityEMASpan
}

// GetSTAOffset returns the sta_offset value or the default.
func (c *PipelineConfig) GetSTAOffset() float64 {
	if c.STAOffset == nil {
		return 0
	}
	return *c.STAOffset
}

// GetMaxRetries returns the max_retries value or the default.
func (c *PipelineConfig) GetMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// GetRetryDelay parses and returns the RetryDelay as a time.Duration.
func (c *PipelineConfig) GetRetryDelay() time.Duration {
	if c.RetryDelay == nil || *c.RetryDelay == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.RetryDelay)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetQueueSize returns the queue_size value or the default.
func (c *PipelineConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 16
	}
	return *c.QueueSize
}

// GetCorrection returns the default channel corrections overlaid with the
// preprocessing section of the correction document.
func (c *PipelineConfig) GetCorrection() track.Correction {
	corr := track.DefaultCorrection()
	if c.Corrections == nil {
		return corr
	}
	for name, so := range c.Corrections.Preprocessing {
		corr[track.Channel(name)] = so
	}
	return corr
}

// GetAnalysisCorrections returns the analysis section of the correction
// document. Metrics without an entry are uncorrected.
func (c *PipelineConfig) GetAnalysisCorrections() analysis.AnalysisCorrections {
	out := analysis.AnalysisCorrections{}
	if c.Corrections == nil {
		return out
	}
	for name, so := range c.Corrections.Analysis {
		out[analysis.Metric(name)] = so
	}
	return out
}
