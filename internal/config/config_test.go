package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, Default(), cfg)
}

func TestLoadMalformedFileUsesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Equal(t, Default(), Load(path))
}

func TestLoadInvalidValuesUseDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "invalid.json")
	// hue_low > hue_high violates the ordering invariant.
	body := `{"lower_green":[90,40,40],"upper_green":[85,255,255],"min_area":100,"max_area":50000}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	assert.Equal(t, Default(), Load(path))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := Config{
		LowerGreen: HSV{H: 30, S: 50, V: 60},
		UpperGreen: HSV{H: 90, S: 250, V: 240},
		MinArea:    150,
		MaxArea:    10000,
	}
	path := filepath.Join(t.TempDir(), "cfg.json")

	require.NoError(t, Save(cfg, path))
	assert.Equal(t, cfg, Load(path))
}

func TestLoadExternalShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cfg.json")
	body := `{"lower_green":[35,40,40],"upper_green":[85,255,255],"min_area":100,"max_area":50000}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	assert.Equal(t, Default(), Load(path))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"hue order", func(c *Config) { c.LowerGreen.H = c.UpperGreen.H + 1 }},
		{"sat order", func(c *Config) { c.LowerGreen.S = 255; c.UpperGreen.S = 40 }},
		{"val order", func(c *Config) { c.LowerGreen.V = 255; c.UpperGreen.V = 40 }},
		{"area order", func(c *Config) { c.MinArea = 200; c.MaxArea = 100 }},
		{"min area positive", func(c *Config) { c.MinArea = 0 }},
		{"hue range", func(c *Config) { c.UpperGreen.H = 200 }},
		{"sat range", func(c *Config) { c.UpperGreen.S = 300 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
