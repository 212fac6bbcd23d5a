package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/batch"
	"github.com/MeKo-Tech/glasscanvas/internal/config"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch PATH...",
		Short: "Render many images in parallel",
		Long: `Apply one transform to every supported image under the given files and
directories. Results are written to the output directory as
<name>_<style>.<ext>; name clashes get a -2, -3, ... suffix.

Supported inputs: PNG, JPEG, GIF, BMP, TIFF, WebP.

Examples:
  glasscanvas batch photos/ -d traced --style "pencil sketch"
  glasscanvas batch photos/ -d traced --recursive --include "*.jpg" --workers 8
  glasscanvas batch a.jpg b.png -d out --format pdf --grid --report json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args)
		},
	}

	addTransformFlags(cmd)
	f := cmd.Flags()
	f.StringP("output-dir", "d", "", "directory for rendered images (required)")
	f.IntP("workers", "w", config.DefaultConfig().Batch.Workers, "number of parallel workers")
	f.Bool("recursive", false, "descend into subdirectories")
	f.StringSlice("include", nil, "glob patterns a file name must match (e.g. *.jpg)")
	f.StringSlice("exclude", nil, "glob patterns that skip a file")
	f.Bool("continue-on-error", false, "keep going after a file fails")
	f.String("format", "png", "output image format (png, jpeg, pdf)")
	f.String("report", "text", "report format (text, json, csv)")
	f.String("report-file", "", "write the report to a file instead of stdout")
	f.Bool("progress", false, "show a progress bar on stderr")
	f.BoolP("quiet", "q", false, "suppress the report and statistics")

	for flag, key := range map[string]string{
		"output-dir":        "batch.output_dir",
		"workers":           "batch.workers",
		"recursive":         "batch.recursive",
		"include":           "batch.include",
		"exclude":           "batch.exclude",
		"continue-on-error": "batch.continue_on_error",
		"format":            "output.format",
	} {
		annotate(f, flag, key)
	}
	return cmd
}

// configToBatchConfig maps the resolved configuration onto a batch run.
func configToBatchConfig(cmd *cobra.Command, cfg *config.Config) (*batch.Config, error) {
	params, err := transformParams(cmd, cfg)
	if err != nil {
		return nil, err
	}

	bc := batch.DefaultConfig()
	bc.Params = params
	bc.Backend = cfg.Pipeline.Backend
	bc.MaxDimension = maxDimension(cmd)
	bc.OutputDir = cfg.Batch.OutputDir
	bc.JPEGQuality = cfg.Output.JPEGQuality
	bc.Workers = cfg.Batch.Workers
	bc.ContinueOnError = cfg.Batch.ContinueOnError
	bc.Recursive = cfg.Batch.Recursive
	bc.IncludePatterns = cfg.Batch.Include
	bc.ExcludePatterns = cfg.Batch.Exclude

	format := strings.ToLower(cfg.Output.Format)
	switch format {
	case "", formatDataURI:
		// data URIs are a single-image hand-off; batches write files
		format = "png"
	}
	bc.Format = format

	if bc.OutputDir == "" {
		return nil, errors.New("an output directory is required (--output-dir)")
	}
	return bc, nil
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	bc, err := configToBatchConfig(cmd, a.config)
	if err != nil {
		return err
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if show, _ := cmd.Flags().GetBool("progress"); show && !quiet {
		bc.Progress = batch.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Rendering: ")
	} else {
		bc.Progress = batch.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := batch.ProcessBatch(ctx, args, bc)
	if result != nil {
		reportFormat, _ := cmd.Flags().GetString("report")
		reportFile, _ := cmd.Flags().GetString("report-file")
		if !quiet || reportFile != "" {
			if saveErr := result.SaveResults(reportFormat, reportFile, quiet); saveErr != nil {
				return saveErr
			}
		}
		if !quiet {
			result.PrintStats(cmd.ErrOrStderr())
		}
	}
	if err != nil {
		return err
	}

	if failed := result.Stats().Failed; failed > 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d images failed\n", failed, len(result.Items))
	}
	return nil
}
