package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agrovision/weedscan/internal/logger"
)

// Default detection parameters, matching the documented config file defaults.
const (
	DefaultMinArea = 100
	DefaultMaxArea = 50000
)

// HSV is one hue/saturation/value bound. Hue is 0-179, saturation and
// value are 0-255.
type HSV struct {
	H, S, V int
}

// Config holds the detection parameters for a run. It is immutable once
// loaded: tuning produces a new Config value, never edits a shared one.
type Config struct {
	LowerGreen HSV
	UpperGreen HSV
	MinArea    int
	MaxArea    int
}

// fileConfig mirrors the on-disk JSON shape:
//
//	{"lower_green": [h,s,v], "upper_green": [h,s,v], "min_area": N, "max_area": N}
type fileConfig struct {
	LowerGreen [3]int `json:"lower_green"`
	UpperGreen [3]int `json:"upper_green"`
	MinArea    int    `json:"min_area"`
	MaxArea    int    `json:"max_area"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		LowerGreen: HSV{H: 35, S: 40, V: 40},
		UpperGreen: HSV{H: 85, S: 255, V: 255},
		MinArea:    DefaultMinArea,
		MaxArea:    DefaultMaxArea,
	}
}

// Validate checks the ordering invariants of the configuration.
func (c Config) Validate() error {
	if c.LowerGreen.H > c.UpperGreen.H {
		return fmt.Errorf("config: hue_low %d > hue_high %d", c.LowerGreen.H, c.UpperGreen.H)
	}
	if c.LowerGreen.S > c.UpperGreen.S {
		return fmt.Errorf("config: sat_low %d > sat_high %d", c.LowerGreen.S, c.UpperGreen.S)
	}
	if c.LowerGreen.V > c.UpperGreen.V {
		return fmt.Errorf("config: val_low %d > val_high %d", c.LowerGreen.V, c.UpperGreen.V)
	}
	if c.MinArea <= 0 {
		return fmt.Errorf("config: min_area %d must be positive", c.MinArea)
	}
	if c.MinArea > c.MaxArea {
		return fmt.Errorf("config: min_area %d > max_area %d", c.MinArea, c.MaxArea)
	}
	if c.LowerGreen.H < 0 || c.UpperGreen.H > 179 {
		return fmt.Errorf("config: hue out of range [0,179]")
	}
	for _, v := range []int{c.LowerGreen.S, c.LowerGreen.V, c.UpperGreen.S, c.UpperGreen.V} {
		if v < 0 || v > 255 {
			return fmt.Errorf("config: sat/val out of range [0,255]")
		}
	}
	return nil
}

// Load reads a configuration file. A missing, malformed or invalid file is
// never fatal: the documented defaults are returned instead, with a warning.
func Load(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Config", "no config file at %s, using defaults", path)
		return Default()
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		logger.Warn("Config", "malformed config %s (%v), using defaults", path, err)
		return Default()
	}

	cfg := Config{
		LowerGreen: HSV{H: fc.LowerGreen[0], S: fc.LowerGreen[1], V: fc.LowerGreen[2]},
		UpperGreen: HSV{H: fc.UpperGreen[0], S: fc.UpperGreen[1], V: fc.UpperGreen[2]},
		MinArea:    fc.MinArea,
		MaxArea:    fc.MaxArea,
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Config", "invalid config %s (%v), using defaults", path, err)
		return Default()
	}

	logger.Info("Config", "loaded configuration from %s", path)
	return cfg
}

// Save writes the configuration to path in the external JSON shape.
// Loading the written file yields an identical Config.
func Save(cfg Config, path string) error {
	fc := fileConfig{
		LowerGreen: [3]int{cfg.LowerGreen.H, cfg.LowerGreen.S, cfg.LowerGreen.V},
		UpperGreen: [3]int{cfg.UpperGreen.H, cfg.UpperGreen.S, cfg.UpperGreen.V},
		MinArea:    cfg.MinArea,
		MaxArea:    cfg.MaxArea,
	}
	data, err := json.MarshalIndent(fc, "", "    ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
