package config

import (
	"errors"
	"testing"

	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

const infoLevel = "info"

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Verbose {
		t.Error("Expected verbose to be false")
	}

	if cfg.Pipeline.Backend != pipeline.NativeBackend {
		t.Errorf("Expected backend %s, got %s", pipeline.NativeBackend, cfg.Pipeline.Backend)
	}
	if cfg.Pipeline.MaxDimension != pipeline.DefaultMaxDimension {
		t.Errorf("Expected max_dimension %d, got %d", pipeline.DefaultMaxDimension, cfg.Pipeline.MaxDimension)
	}

	if cfg.Defaults.Style != "Original" {
		t.Errorf("Expected style 'Original', got %s", cfg.Defaults.Style)
	}
	if cfg.Defaults.EdgeLow != 50 || cfg.Defaults.EdgeHigh != 150 {
		t.Errorf("Expected edge thresholds 50/150, got %d/%d", cfg.Defaults.EdgeLow, cfg.Defaults.EdgeHigh)
	}
	if cfg.Defaults.Contrast != 1.0 {
		t.Errorf("Expected contrast 1.0, got %f", cfg.Defaults.Contrast)
	}

	if cfg.Output.Format != "png" {
		t.Errorf("Expected output format 'png', got %s", cfg.Output.Format)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected server host 'localhost', got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled by default")
	}

	if cfg.Batch.Workers != 4 {
		t.Errorf("Expected batch workers 4, got %d", cfg.Batch.Workers)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

// TestConfigValidate covers each rejected field.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"backend", func(c *Config) { c.Pipeline.Backend = "imagemagick" }},
		{"max dimension", func(c *Config) { c.Pipeline.MaxDimension = -1 }},
		{"style", func(c *Config) { c.Defaults.Style = "Watercolor" }},
		{"brightness", func(c *Config) { c.Defaults.Brightness = 101 }},
		{"contrast", func(c *Config) { c.Defaults.Contrast = 0.1 }},
		{"edge high", func(c *Config) { c.Defaults.EdgeHigh = 501 }},
		{"grid size", func(c *Config) { c.Defaults.GridSize = 1 }},
		{"output format", func(c *Config) { c.Output.Format = "gif" }},
		{"jpeg quality", func(c *Config) { c.Output.JPEGQuality = 101 }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }},
		{"session ttl", func(c *Config) { c.Server.SessionTTLMin = 0 }},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerHour = -1 }},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error for %s", tt.name)
			}
		})
	}
}

// TestConfigValidateAcceptsAliases checks formats the CLI accepts.
func TestConfigValidateAcceptsAliases(t *testing.T) {
	for _, format := range []string{"png", "jpeg", "jpg", "JPG", "pdf", "datauri", ""} {
		cfg := DefaultConfig()
		cfg.Output.Format = format
		if err := cfg.Validate(); err != nil {
			t.Errorf("format %q: unexpected error %v", format, err)
		}
	}
}

// TestConfigParams verifies conversion of the defaults section.
func TestConfigParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.Style = "magic-outline"
	cfg.Defaults.Brightness = -20
	cfg.Defaults.ShowGrid = true
	cfg.Defaults.GridSize = 4

	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params() unexpected error: %v", err)
	}
	if p.Style != pipeline.StyleMagicOutline {
		t.Errorf("Expected Magic Outline, got %s", p.Style)
	}
	if p.Brightness != -20 || !p.ShowGrid || p.GridSize != 4 {
		t.Errorf("Unexpected params: %+v", p)
	}
	if p.Rotation != 0 || !p.Crop.IsZero() {
		t.Errorf("Params() must not carry geometry, got %+v", p)
	}

	cfg.Defaults.Style = "nope"
	if _, err := cfg.Params(); !errors.Is(err, pipeline.ErrUnknownStyle) {
		t.Errorf("Expected ErrUnknownStyle, got %v", err)
	}
}

// TestToPipelineConfig verifies the pipeline mapping.
func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.MaxDimension = 0
	pc := cfg.ToPipelineConfig()
	if pc.Backend != pipeline.NativeBackend || pc.MaxDimension != 0 {
		t.Errorf("Unexpected pipeline config: %+v", pc)
	}
}
