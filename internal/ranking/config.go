package ranking

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
)

// Weights are the maximum contribution of each sub-score.
type Weights struct {
	Category     float64 `json:"category"`
	Neighborhood float64 `json:"neighborhood"`
	Vibe         float64 `json:"vibe"`
	Companion    float64 `json:"companion"`
	Budget       float64 `json:"budget"`
	Timing       float64 `json:"timing"`

	// DislikeScale is the magnitude of a disliked category relative to a
	// liked one at the same intensity.
	DislikeScale float64 `json:"dislike_scale"`
}

// FeedbackConfig tunes the MORE/LESS adjustment.
type FeedbackConfig struct {
	WindowDays int     `json:"window_days"`
	Step       float64 `json:"step"`
	MaxAdjust  float64 `json:"max_adjust"`
}

// DecayConfig tunes repeat-view suppression.
type DecayConfig struct {
	Step    float64 `json:"step"`
	HardCap int     `json:"hard_cap"`
}

// DiversityConfig caps one category at ceil(pageSize / MaxShareDivisor)
// items per page.
type DiversityConfig struct {
	MaxShareDivisor int `json:"max_share_divisor"`
}

// ExplorationConfig is the share of each page reserved for off-profile picks.
type ExplorationConfig struct {
	Fraction          float64 `json:"fraction"`
	DiscoveryFraction float64 `json:"discovery_fraction"`
	ColdStartTopN     int     `json:"cold_start_top_n"`
}

// PageConfig bounds page sizes.
type PageConfig struct {
	DefaultSize int `json:"default_size"`
	MaxSize     int `json:"max_size"`
}

// DefaultVersion labels the built-in defaults.
const DefaultVersion = "1"

// Config holds every tunable of the ranking pipeline.
type Config struct {
	// Version is the calibration file's version, exported on traces.
	Version     string            `json:"-"`
	Weights     Weights           `json:"weights"`
	Feedback    FeedbackConfig    `json:"feedback"`
	Decay       DecayConfig       `json:"decay"`
	Diversity   DiversityConfig   `json:"diversity"`
	Exploration ExplorationConfig `json:"exploration"`
	Page        PageConfig        `json:"page"`
}

// CalibrationConfig is the JSON layout of a calibration file.
type CalibrationConfig struct {
	Version string `json:"version"`
	Ranking Config `json:"ranking"`
}

// DefaultConfig returns the untuned defaults.
//
// Sub-score weights: category 30, vibe 20, neighborhood 15, companion 15,
// budget 10, timing 10. A fully matching item scores 100.
func DefaultConfig() *Config {
	return &Config{
		Version: DefaultVersion,
		Weights: Weights{
			Category:     30,
			Neighborhood: 15,
			Vibe:         20,
			Companion:    15,
			Budget:       10,
			Timing:       10,
			DislikeScale: 0.5,
		},
		Feedback: FeedbackConfig{
			WindowDays: 90,
			Step:       0.05,
			MaxAdjust:  0.5,
		},
		Decay: DecayConfig{
			Step:    0.15,
			HardCap: 5,
		},
		Diversity: DiversityConfig{
			MaxShareDivisor: 3,
		},
		Exploration: ExplorationConfig{
			Fraction:          0.10,
			DiscoveryFraction: 0.25,
			ColdStartTopN:     3,
		},
		Page: PageConfig{
			DefaultSize: 20,
			MaxSize:     100,
		},
	}
}

// LoadCalibration reads a calibration file and merges it onto the defaults.
// An empty path returns the defaults. On any error the defaults are returned
// along with the error so callers can keep serving.
func LoadCalibration(filePath string) (*Config, error) {
	if filePath == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var calib CalibrationConfig
	if err := json.Unmarshal(data, &calib); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultConfig()
	merged := MergeCalibration(defaults, &calib.Ranking)
	if calib.Version != "" {
		merged.Version = calib.Version
	}
	logCalibrationOverrides(defaults, merged)
	return merged, nil
}

type floatField struct {
	name string
	ptr  *float64
}

type intField struct {
	name string
	ptr  *int
}

func (c *Config) floatFields() []floatField {
	return []floatField{
		{"weights.category", &c.Weights.Category},
		{"weights.neighborhood", &c.Weights.Neighborhood},
		{"weights.vibe", &c.Weights.Vibe},
		{"weights.companion", &c.Weights.Companion},
		{"weights.budget", &c.Weights.Budget},
		{"weights.timing", &c.Weights.Timing},
		{"weights.dislike_scale", &c.Weights.DislikeScale},
		{"feedback.step", &c.Feedback.Step},
		{"feedback.max_adjust", &c.Feedback.MaxAdjust},
		{"decay.step", &c.Decay.Step},
		{"exploration.fraction", &c.Exploration.Fraction},
		{"exploration.discovery_fraction", &c.Exploration.DiscoveryFraction},
	}
}

func (c *Config) intFields() []intField {
	return []intField{
		{"feedback.window_days", &c.Feedback.WindowDays},
		{"decay.hard_cap", &c.Decay.HardCap},
		{"diversity.max_share_divisor", &c.Diversity.MaxShareDivisor},
		{"exploration.cold_start_top_n", &c.Exploration.ColdStartTopN},
		{"page.default_size", &c.Page.DefaultSize},
		{"page.max_size", &c.Page.MaxSize},
	}
}

// MergeCalibration returns base with every non-zero field of override
// applied. Neither argument is modified.
func MergeCalibration(base, override *Config) *Config {
	if base == nil {
		base = DefaultConfig()
	}
	result := *base
	if override == nil {
		return &result
	}

	ov := *override
	dst, src := result.floatFields(), ov.floatFields()
	for i := range dst {
		if *src[i].ptr != 0 {
			*dst[i].ptr = *src[i].ptr
		}
	}
	dstInt, srcInt := result.intFields(), ov.intFields()
	for i := range dstInt {
		if *srcInt[i].ptr != 0 {
			*dstInt[i].ptr = *srcInt[i].ptr
		}
	}
	return &result
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	for _, f := range c.floatFields() {
		if *f.ptr < 0 {
			return fmt.Errorf("ranking: %s must not be negative", f.name)
		}
	}
	if c.Feedback.MaxAdjust >= 1 {
		return fmt.Errorf("ranking: feedback.max_adjust must be below 1")
	}
	if c.Exploration.Fraction > 1 || c.Exploration.DiscoveryFraction > 1 {
		return fmt.Errorf("ranking: exploration fractions must be at most 1")
	}
	if c.Diversity.MaxShareDivisor < 1 {
		return fmt.Errorf("ranking: diversity.max_share_divisor must be at least 1")
	}
	if c.Page.DefaultSize < 1 || c.Page.MaxSize < c.Page.DefaultSize {
		return fmt.Errorf("ranking: page sizes must satisfy 1 <= default_size <= max_size")
	}
	return nil
}

func logCalibrationOverrides(defaults, loaded *Config) {
	var overrides []string

	want, got := defaults.floatFields(), loaded.floatFields()
	for i := range want {
		if *want[i].ptr != *got[i].ptr {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", want[i].name, *want[i].ptr, *got[i].ptr))
		}
	}
	wantInt, gotInt := defaults.intFields(), loaded.intFields()
	for i := range wantInt {
		if *wantInt[i].ptr != *gotInt[i].ptr {
			overrides = append(overrides, fmt.Sprintf("%s: %d -> %d", wantInt[i].name, *wantInt[i].ptr, *gotInt[i].ptr))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides", "overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
