package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
	"github.com/MeKo-Tech/glasscanvas/internal/server"
)

type stylesOutput struct {
	Styles   []server.StyleInfo `json:"styles"`
	Defaults pipeline.Params    `json:"defaults"`
}

func newStylesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List style modes and parameter defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := a.config.Params()
			if err != nil {
				return err
			}
			out := stylesOutput{Defaults: params}
			for _, st := range pipeline.Styles() {
				out.Styles = append(out.Styles, server.StyleInfo{
					Name:               st.String(),
					Slug:               st.Slug(),
					SingleChannel:      st.SingleChannel(),
					UsesEdgeThresholds: st.UsesEdgeThresholds(),
				})
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			case "text", "":
				return printStyles(cmd, out)
			default:
				return fmt.Errorf("unsupported format: %s (use text or json)", format)
			}
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	return cmd
}

func printStyles(cmd *cobra.Command, out stylesOutput) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSLUG\tCHANNELS\tEDGE THRESHOLDS")
	for _, s := range out.Styles {
		channels := "3"
		if s.SingleChannel {
			channels = "1"
		}
		edges := "-"
		if s.UsesEdgeThresholds {
			edges = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Slug, channels, edges)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	d := out.Defaults
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Defaults:")
	_, _ = fmt.Fprintf(w, "  style:      %s\n", d.Style)
	_, _ = fmt.Fprintf(w, "  brightness: %d (%d..%d)\n", d.Brightness, pipeline.MinBrightness, pipeline.MaxBrightness)
	_, _ = fmt.Fprintf(w, "  contrast:   %.1f (%.1f..%.1f)\n", d.Contrast, pipeline.MinContrast, pipeline.MaxContrast)
	_, _ = fmt.Fprintf(w, "  edges:      %d/%d (0..%d)\n", d.EdgeLow, d.EdgeHigh, pipeline.MaxEdgeThreshold)
	_, _ = fmt.Fprintf(w, "  grid:       %t, %d cells\n", d.ShowGrid, d.Grid())
	return nil
}
