package batch

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Transform applied to every file
	Params pipeline.Params

	// Pipeline settings
	Backend      string
	MaxDimension int

	// Output settings
	OutputDir   string
	Format      string
	JPEGQuality int

	// Worker pool settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress reports per-file completion; nil disables reporting.
	Progress ProgressCallback
}

// DefaultConfig returns a config that writes PNGs with one worker per CPU.
func DefaultConfig() *Config {
	return &Config{
		Params:       pipeline.DefaultParams(),
		Backend:      pipeline.NativeBackend,
		MaxDimension: 0,
		Format:       "png",
		JPEGQuality:  codec.DefaultJPEGQuality,
		Workers:      runtime.NumCPU(),
	}
}

// Validate checks the config before any file is touched.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality must be 0-100, got %d", ErrInvalidConfig, c.JPEGQuality)
	}
	if _, err := codec.NewRegistry().Get(c.Format); err != nil {
		return err
	}
	return c.Params.Validate()
}

// Item is the outcome for one input file.
type Item struct {
	Input    string        `json:"input"`
	Output   string        `json:"output,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	Bytes    int           `json:"bytes,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Failed reports whether the file could not be rendered or written.
func (i Item) Failed() bool { return i.Err != nil }

// Result holds the result of batch processing.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Stats summarizes a batch run.
type Stats struct {
	Total            int           `json:"total"`
	Processed        int           `json:"processed"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	WorkerCount      int           `json:"workers"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// Stats counts outcomes. Items that never ran (after a failure without
// ContinueOnError) count as skipped.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Items), WorkerCount: r.WorkerCount, TotalDuration: r.Duration}
	var busy time.Duration
	for _, it := range r.Items {
		switch {
		case it.Failed():
			s.Failed++
		case it.Output == "":
			s.Skipped++
		default:
			s.Processed++
			busy += it.Duration
		}
	}
	if s.Processed > 0 {
		s.AveragePerImage = busy / time.Duration(s.Processed)
	}
	if r.Duration > 0 {
		s.ThroughputPerSec = float64(s.Processed) / r.Duration.Seconds()
	}
	return s
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

// SaveResults writes the formatted report to outputFile or stdout.
func (r *Result) SaveResults(format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(os.Stdout, "Results written to %s\n", outputFile)
		}
	} else {
		_, _ = fmt.Fprint(os.Stdout, output)
	}

	return nil
}

// PrintStats prints processing statistics to w.
func (r *Result) PrintStats(w io.Writer) {
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", stats.Total)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Processed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "  Skipped: %d\n", stats.Skipped)
	}
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}
