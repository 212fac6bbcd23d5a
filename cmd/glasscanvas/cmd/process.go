package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

const formatDataURI = "datauri"

func newProcessCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process IMAGE",
		Short: "Render one image with the chosen transform",
		Long: `Apply rotation, crop, brightness/contrast, a style mode and an optional grid
to a single image and write the result.

Use "-" as IMAGE to read from stdin and "-o -" to write to stdout. Without
--output the result is written next to the input as <name>_<style>.<ext>.
The datauri format prints a base64 PNG data URI, ready to hand to a tracing
surface.

Examples:
  glasscanvas process photo.jpg --style "magic outline" --edge-low 30
  glasscanvas process photo.jpg -r 1 --crop-left 10 --grid -o sheet.pdf
  glasscanvas process photo.jpg --style sepia --format datauri -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProcess(cmd, args[0])
		},
	}

	addTransformFlags(cmd)
	cmd.Flags().StringP("output", "o", "", `output file ("-" for stdout)`)
	cmd.Flags().StringP("format", "f", "png", "output format (png, jpeg, pdf, datauri)")
	cmd.Flags().Bool("timings", false, "print per-stage timings to stderr")
	annotate(cmd.Flags(), "format", "output.format")
	return cmd
}

func (a *app) runProcess(cmd *cobra.Command, input string) error {
	cfg := a.config
	params, err := transformParams(cmd, cfg)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	format := strings.ToLower(cfg.Output.Format)
	if !cmd.Flags().Changed("format") && output != "" && output != "-" {
		if f, ok := formatFromPath(output); ok {
			format = f
		}
	}
	if format == "" {
		format = "png"
	}

	img, meta, err := readInput(cmd.InOrStdin(), input)
	if err != nil {
		return err
	}
	slog.Debug("Input decoded", "path", input, "format", meta.Format, "width", meta.Width, "height", meta.Height)

	pl, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	res, err := pl.Run(context.Background(), img, params)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	data, ext, err := encodeResult(res, format, cfg.Output.JPEGQuality, input)
	if err != nil {
		return err
	}

	if output == "" {
		if input == "-" {
			output = "-"
		} else {
			base := filepath.Base(input)
			name := strings.TrimSuffix(base, filepath.Ext(base)) + "_" + params.Style.Slug() + "." + ext
			output = filepath.Join(filepath.Dir(input), name)
		}
	}

	if output == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else {
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%dx%d, %s) in %.1fms\n",
			output, res.Width, res.Height, params.Style, common.Millis(res.Total))
	}

	if show, _ := cmd.Flags().GetBool("timings"); show {
		printTimings(cmd.ErrOrStderr(), res)
	}
	return nil
}

// readInput decodes a file, or stdin for "-".
func readInput(stdin io.Reader, path string) (image.Image, codec.Metadata, error) {
	if path == "-" {
		return codec.Decode(stdin)
	}
	return codec.LoadImage(path)
}

// encodeResult encodes the render in format and returns the bytes and the
// file extension to use.
func encodeResult(res *pipeline.Result, format string, quality int, input string) ([]byte, string, error) {
	if format == formatDataURI {
		uri, err := codec.DataURI(res.Image)
		if err != nil {
			return nil, "", err
		}
		return []byte(uri + "\n"), "txt", nil
	}
	data, enc, err := codec.NewRegistry().EncodeBuffer(res.Image, format, codec.Options{
		Quality: quality,
		Title:   filepath.Base(input),
	})
	if err != nil {
		return nil, "", err
	}
	return data, enc.Extension(), nil
}

func printTimings(w io.Writer, res *pipeline.Result) {
	timings := res.TimingsMillis()
	stages := make([]string, 0, len(timings))
	for s := range timings {
		stages = append(stages, s)
	}
	slices.Sort(stages)
	for _, s := range stages {
		_, _ = fmt.Fprintf(w, "  %-10s %8.2fms\n", s, timings[s])
	}
	_, _ = fmt.Fprintf(w, "  %-10s %8.2fms\n", "total", common.Millis(res.Total))
}
