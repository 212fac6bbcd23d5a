package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// Config represents the complete configuration for glasscanvas.
// It includes settings for all commands (process, batch, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Default render knobs, applied before flags and form fields
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults" json:"defaults"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// PipelineConfig selects the style backend and the working resolution.
type PipelineConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend" json:"backend"`
	MaxDimension int    `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
}

// DefaultsConfig holds the initial render parameters.
type DefaultsConfig struct {
	Style      string  `mapstructure:"style" yaml:"style" json:"style"`
	EdgeLow    int     `mapstructure:"edge_low" yaml:"edge_low" json:"edge_low"`
	EdgeHigh   int     `mapstructure:"edge_high" yaml:"edge_high" json:"edge_high"`
	Brightness int     `mapstructure:"brightness" yaml:"brightness" json:"brightness"`
	Contrast   float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	ShowGrid   bool    `mapstructure:"show_grid" yaml:"show_grid" json:"show_grid"`
	GridSize   int     `mapstructure:"grid_size" yaml:"grid_size" json:"grid_size"`
}

// OutputConfig contains output encoding settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	SessionTTLMin   int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min" json:"session_ttl_min"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds requests per client. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string   `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	params := pipeline.DefaultParams()
	pc := pipeline.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Pipeline: PipelineConfig{
			Backend:      pc.Backend,
			MaxDimension: pc.MaxDimension,
		},
		Defaults: DefaultsConfig{
			Style:      params.Style.String(),
			EdgeLow:    params.EdgeLow,
			EdgeHigh:   params.EdgeHigh,
			Brightness: params.Brightness,
			Contrast:   params.Contrast,
			ShowGrid:   params.ShowGrid,
			GridSize:   params.GridSize,
		},
		Output: OutputConfig{
			Format:      "png",
			JPEGQuality: codec.DefaultJPEGQuality,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			SessionTTLMin:   60,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
				RequestsPerHour:   2000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDay:     2 << 30,
			},
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Pipeline.Backend != "" && !slices.Contains(pipeline.Backends(), c.Pipeline.Backend) {
		return fmt.Errorf("invalid pipeline backend: %s (must be one of: %s)",
			c.Pipeline.Backend, strings.Join(pipeline.Backends(), ", "))
	}
	if c.Pipeline.MaxDimension < 0 {
		return fmt.Errorf("invalid pipeline max dimension: %d (must not be negative)", c.Pipeline.MaxDimension)
	}

	if _, err := c.Params(); err != nil {
		return fmt.Errorf("invalid defaults: %w", err)
	}

	validFormats := append(codec.NewRegistry().Available(), "jpg", "datauri")
	if c.Output.Format != "" && !slices.Contains(validFormats, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Output.JPEGQuality < 0 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 0 and 100)", c.Output.JPEGQuality)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.SessionTTLMin <= 0 {
		return fmt.Errorf("invalid session ttl: %d (must be positive)", c.Server.SessionTTLMin)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
		return fmt.Errorf("invalid rate limit: limits must not be negative")
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	return nil
}

// Params converts the configured defaults into render parameters.
func (c *Config) Params() (pipeline.Params, error) {
	style, err := pipeline.ParseStyle(c.Defaults.Style)
	if err != nil {
		return pipeline.Params{}, err
	}
	p := pipeline.DefaultParams()
	p.Style = style
	p.EdgeLow = c.Defaults.EdgeLow
	p.EdgeHigh = c.Defaults.EdgeHigh
	p.Brightness = c.Defaults.Brightness
	p.Contrast = c.Defaults.Contrast
	p.ShowGrid = c.Defaults.ShowGrid
	p.GridSize = c.Defaults.GridSize
	if err := p.Validate(); err != nil {
		return pipeline.Params{}, err
	}
	return p, nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Backend:      c.Pipeline.Backend,
		MaxDimension: c.Pipeline.MaxDimension,
	}
}
