// Package batch applies one transform to many image files on a worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

var (
	// ErrNoImages is returned when discovery finds nothing to process.
	ErrNoImages = errors.New("no image files found")
	// ErrInvalidConfig wraps configuration problems found before any work.
	ErrInvalidConfig = errors.New("invalid batch configuration")
)

// ProcessBatch renders every image found under imagePaths into
// config.OutputDir. The returned Result is non-nil whenever processing
// started, also when an error is returned.
func ProcessBatch(ctx context.Context, imagePaths []string, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	files, err := discoverImageFiles(imagePaths, config.Recursive, config.IncludePatterns, config.ExcludePatterns, config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	pl, err := pipeline.NewBuilder().
		WithBackend(config.Backend).
		WithMaxDimension(config.MaxDimension).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	encoders := codec.NewRegistry()
	enc, err := encoders.Get(config.Format)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(config.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs := planJobs(files, config.OutputDir, config.Params.Style, enc.Extension())
	slog.Info("Batch starting",
		"files", len(jobs),
		"style", config.Params.Style.String(),
		"format", enc.Format(),
		"backend", pl.BackendName(),
		"output_dir", config.OutputDir)

	startTime := time.Now()
	items, err := processImagesParallel(ctx, pl, encoders, jobs, config)
	result := &Result{
		Items:       items,
		Duration:    time.Since(startTime),
		WorkerCount: min(workerCount(config.Workers), len(jobs)),
	}
	if err != nil {
		return result, fmt.Errorf("batch processing failed: %w", err)
	}
	return result, nil
}
