package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/benchmark"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

func newBenchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench [IMAGE]",
		Short: "Time every style on every style backend",
		Long: `Render an image repeatedly with each style on each registered backend and
report average, min and max render times. Without IMAGE a synthetic
640x480 photo is used. The configured defaults supply brightness, contrast
and edge thresholds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd, args)
		},
	}
	f := cmd.Flags()
	f.IntP("iterations", "n", 3, "renders per style and backend")
	f.StringSlice("styles", nil, "styles to measure (default all)")
	f.StringSlice("backends", nil, "backends to measure (default all registered)")
	f.StringP("format", "f", "text", "output format (text, json)")
	return cmd
}

func (a *app) runBench(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	format, _ := f.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format: %s (use text or json)", format)
	}

	params, err := a.config.Params()
	if err != nil {
		return err
	}
	names, _ := f.GetStringSlice("styles")
	styles := make([]pipeline.Style, 0, len(names))
	for _, n := range names {
		st, err := pipeline.ParseStyle(n)
		if err != nil {
			return err
		}
		styles = append(styles, st)
	}
	backends, _ := f.GetStringSlice("backends")
	iterations, _ := f.GetInt("iterations")

	var src *imgbuf.Buffer
	if len(args) == 1 {
		img, _, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		src = pipeline.Normalize(img, a.config.Pipeline.MaxDimension)
	} else {
		src = imgbuf.FromImage(benchmark.SyntheticSource(640, 480))
	}

	suite, err := benchmark.NewSuite(src, benchmark.Options{
		Iterations: iterations,
		Styles:     styles,
		Backends:   backends,
		Params:     params,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Benchmarking %dx%d source, %d iterations per case\n",
		src.Width, src.Height, iterations)
	results, err := suite.Run(cmd.Context())
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return benchmark.PrintResults(cmd.OutOrStdout(), results)
}
