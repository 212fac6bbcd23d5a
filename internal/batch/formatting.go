package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/glasscanvas/internal/common"
)

// itemStatus names an item outcome in reports.
func itemStatus(it Item) string {
	switch {
	case it.Failed():
		return "failed"
	case it.Output == "":
		return "skipped"
	default:
		return "ok"
	}
}

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format string) (string, error) {
	switch strings.ToLower(format) {
	case "json":
		return formatJSON(r)
	case "csv":
		return formatCSV(r)
	case "", "text":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or csv)", format)
	}
}

type jsonItem struct {
	Input      string  `json:"input"`
	Output     string  `json:"output,omitempty"`
	Status     string  `json:"status"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// formatJSON formats results as JSON.
func formatJSON(r *Result) (string, error) {
	report := struct {
		Images []jsonItem `json:"images"`
		Stats  Stats      `json:"stats"`
	}{
		Images: make([]jsonItem, len(r.Items)),
		Stats:  r.Stats(),
	}
	for i, it := range r.Items {
		ji := jsonItem{
			Input:      it.Input,
			Output:     it.Output,
			Status:     itemStatus(it),
			Width:      it.Width,
			Height:     it.Height,
			Bytes:      it.Bytes,
			DurationMs: common.Millis(it.Duration),
		}
		if it.Err != nil {
			ji.Error = it.Err.Error()
		}
		report.Images[i] = ji
	}

	bts, err := json.MarshalIndent(report, "", "  ")
	return string(bts), err
}

// formatCSV formats results as CSV.
func formatCSV(r *Result) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{"input", "output", "status", "width", "height", "bytes", "duration_ms", "error"}); err != nil {
		return "", err
	}
	for _, it := range r.Items {
		errText := ""
		if it.Err != nil {
			errText = it.Err.Error()
		}
		row := []string{
			it.Input,
			it.Output,
			itemStatus(it),
			strconv.Itoa(it.Width),
			strconv.Itoa(it.Height),
			strconv.Itoa(it.Bytes),
			fmt.Sprintf("%.3f", common.Millis(it.Duration)),
			errText,
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText formats results as plain text, one line per file.
func formatText(r *Result) string {
	var output strings.Builder
	for _, it := range r.Items {
		switch itemStatus(it) {
		case "ok":
			fmt.Fprintf(&output, "%s -> %s (%dx%d)\n", it.Input, it.Output, it.Width, it.Height)
		case "failed":
			fmt.Fprintf(&output, "%s: FAILED: %v\n", it.Input, it.Err)
		default:
			fmt.Fprintf(&output, "%s: skipped\n", it.Input)
		}
	}
	return output.String()
}
