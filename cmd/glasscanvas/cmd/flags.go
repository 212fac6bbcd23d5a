package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/config"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// addTransformFlags registers the render knobs shared by process and batch.
// Knobs with a configurable default are annotated with their config key.
func addTransformFlags(cmd *cobra.Command) {
	d := config.DefaultConfig().Defaults
	f := cmd.Flags()

	f.IntP("rotate", "r", 0, "clockwise quarter turns (negative turns left)")
	f.Float64("crop-left", 0, "percent trimmed from the left edge (0-50)")
	f.Float64("crop-right", 0, "percent trimmed from the right edge (0-50)")
	f.Float64("crop-top", 0, "percent trimmed from the top edge (0-50)")
	f.Float64("crop-bottom", 0, "percent trimmed from the bottom edge (0-50)")

	f.StringP("style", "s", d.Style, "style mode ("+strings.Join(styleSlugs(), ", ")+")")
	f.Int("brightness", d.Brightness, "brightness offset (-100..100)")
	f.Float64("contrast", d.Contrast, "contrast gain (0.5..3.0)")
	f.Int("edge-low", d.EdgeLow, "Magic Outline lower edge threshold (0..500)")
	f.Int("edge-high", d.EdgeHigh, "Magic Outline upper edge threshold (0..500)")
	f.Bool("grid", d.ShowGrid, "overlay a tracing grid")
	f.Int("grid-size", d.GridSize, "grid cells per side")

	f.String("backend", pipeline.NativeBackend, "style backend ("+strings.Join(pipeline.Backends(), ", ")+")")
	f.Int("max-dimension", 0, "fit sources into this many pixels per side before rendering (0 keeps full size)")
	f.Int("quality", codec.DefaultJPEGQuality, "JPEG quality (1-100)")

	for flag, key := range map[string]string{
		"style":         "defaults.style",
		"brightness":    "defaults.brightness",
		"contrast":      "defaults.contrast",
		"edge-low":      "defaults.edge_low",
		"edge-high":     "defaults.edge_high",
		"grid":          "defaults.show_grid",
		"grid-size":     "defaults.grid_size",
		"backend":       "pipeline.backend",
		"quality":       "output.jpeg_quality",
	} {
		annotate(f, flag, key)
	}
}

// transformParams starts from the configured defaults (flag overrides are
// already folded in) and adds the per-invocation rotation and crop.
func transformParams(cmd *cobra.Command, cfg *config.Config) (pipeline.Params, error) {
	p, err := cfg.Params()
	if err != nil {
		return p, err
	}
	f := cmd.Flags()
	p.Rotation, _ = f.GetInt("rotate")
	p.Crop.Left, _ = f.GetFloat64("crop-left")
	p.Crop.Right, _ = f.GetFloat64("crop-right")
	p.Crop.Top, _ = f.GetFloat64("crop-top")
	p.Crop.Bottom, _ = f.GetFloat64("crop-bottom")
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// buildPipeline creates the render pipeline for a file-writing command.
// pipeline.max_dimension bounds server previews only; saved renders stay at
// full resolution unless --max-dimension is given.
func buildPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilder().
		WithBackend(cfg.Pipeline.Backend).
		WithMaxDimension(maxDimension(cmd)).
		Build()
}

func maxDimension(cmd *cobra.Command) int {
	n, _ := cmd.Flags().GetInt("max-dimension")
	return max(n, 0)
}

// formatFromPath guesses an output format from a file extension.
func formatFromPath(path string) (string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", false
	}
	if _, err := codec.NewRegistry().Get(ext); err != nil {
		return "", false
	}
	return ext, true
}

func styleSlugs() []string {
	styles := pipeline.Styles()
	out := make([]string, len(styles))
	for i, s := range styles {
		out[i] = s.Slug()
	}
	return out
}
