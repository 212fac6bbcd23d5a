// Package benchmark times full renders for each style on each registered
// backend so the native and OpenCV implementations can be compared.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// Options selects what a Suite measures.
type Options struct {
	Iterations int
	Styles     []pipeline.Style
	Backends   []string
	Params     pipeline.Params
}

// Result holds the measurements for one style on one backend.
type Result struct {
	Backend    string             `json:"backend"`
	Style      pipeline.Style     `json:"style"`
	Iterations int                `json:"iterations"`
	Total      time.Duration      `json:"-"`
	Min        time.Duration      `json:"-"`
	Max        time.Duration      `json:"-"`
	AvgMillis  float64            `json:"avg_ms"`
	MinMillis  float64            `json:"min_ms"`
	MaxMillis  float64            `json:"max_ms"`
	StageMs    map[string]float64 `json:"stage_avg_ms"`
	AllocKB    int64              `json:"alloc_kb"`
	Error      string             `json:"error,omitempty"`
}

// Avg returns the mean render duration.
func (r Result) Avg() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

func (r Result) String() string {
	if r.Error != "" {
		return fmt.Sprintf("%s/%s: ERROR - %s", r.Backend, r.Style.Slug(), r.Error)
	}
	return fmt.Sprintf("%s/%s: %d iterations, avg: %v, min: %v, max: %v, mem: %+d KB",
		r.Backend, r.Style.Slug(), r.Iterations, r.Avg(), r.Min, r.Max, r.AllocKB)
}

// Suite runs every (backend, style) pair over one source buffer.
type Suite struct {
	opts    Options
	src     *imgbuf.Buffer
	results []Result
}

// NewSuite validates opts and prepares the source. Missing styles default
// to all styles, missing backends to every registered backend.
func NewSuite(src *imgbuf.Buffer, opts Options) (*Suite, error) {
	if src == nil || src.Empty() {
		return nil, errors.New("benchmark source image is empty")
	}
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
	}
	if len(opts.Styles) == 0 {
		opts.Styles = pipeline.Styles()
	}
	if len(opts.Backends) == 0 {
		opts.Backends = pipeline.Backends()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	return &Suite{opts: opts, src: src}, nil
}

// Run measures each pair in order. A backend that cannot be built yields an
// error row per style instead of aborting the suite.
func (s *Suite) Run(ctx context.Context) ([]Result, error) {
	s.results = s.results[:0]
	for _, name := range s.opts.Backends {
		p, buildErr := pipeline.NewBuilder().WithBackend(name).WithMaxDimension(0).Build()
		for _, style := range s.opts.Styles {
			if err := ctx.Err(); err != nil {
				return s.results, err
			}
			if buildErr != nil {
				s.results = append(s.results, Result{Backend: name, Style: style, Error: buildErr.Error()})
				continue
			}
			r := s.measure(ctx, p, style)
			slog.Debug("Benchmark case finished", "backend", name, "style", style.Slug(), "avg_ms", r.AvgMillis)
			s.results = append(s.results, r)
		}
	}
	return s.results, nil
}

// Results returns the rows of the last run.
func (s *Suite) Results() []Result { return s.results }

func (s *Suite) measure(ctx context.Context, p *pipeline.Pipeline, style pipeline.Style) Result {
	params := s.opts.Params
	params.Style = style
	r := Result{Backend: p.BackendName(), Style: style, StageMs: map[string]float64{}}

	runtime.GC()
	before := common.GetMemoryStats()
	for i := range s.opts.Iterations {
		res, err := p.Render(ctx, s.src, params)
		if err != nil {
			r.Error = err.Error()
			break
		}
		if i == 0 || res.Total < r.Min {
			r.Min = res.Total
		}
		r.Max = max(r.Max, res.Total)
		r.Total += res.Total
		r.Iterations++
		for stage, ms := range res.TimingsMillis() {
			r.StageMs[stage] += ms
		}
	}
	after := common.GetMemoryStats()
	//nolint:gosec // G115: display only
	r.AllocKB = (int64(after.TotalAlloc) - int64(before.TotalAlloc)) / 1024

	if r.Iterations > 0 {
		for stage := range r.StageMs {
			r.StageMs[stage] /= float64(r.Iterations)
		}
	}
	r.AvgMillis = common.Millis(r.Avg())
	r.MinMillis = common.Millis(r.Min)
	r.MaxMillis = common.Millis(r.Max)
	return r
}

// Fastest returns, per style, the backend with the lowest average among
// rows without errors.
func Fastest(results []Result) map[pipeline.Style]string {
	best := map[pipeline.Style]Result{}
	for _, r := range results {
		if r.Error != "" || r.Iterations == 0 {
			continue
		}
		if cur, ok := best[r.Style]; !ok || r.Avg() < cur.Avg() {
			best[r.Style] = r
		}
	}
	out := make(map[pipeline.Style]string, len(best))
	for s, r := range best {
		out[s] = r.Backend
	}
	return out
}

// PrintResults writes a table of the results followed by the fastest
// backend per style when more than one backend was measured.
func PrintResults(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BACKEND\tSTYLE\tRUNS\tAVG\tMIN\tMAX\tALLOC")
	backends := map[string]bool{}
	for _, r := range results {
		backends[r.Backend] = true
		if r.Error != "" {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t-\terror: %s\t\t\t\n", r.Backend, r.Style.Slug(), r.Error)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%.2fms\t%.2fms\t%.2fms\t%+d KB\n",
			r.Backend, r.Style.Slug(), r.Iterations, r.AvgMillis, r.MinMillis, r.MaxMillis, r.AllocKB)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(backends) < 2 {
		return nil
	}

	fastest := Fastest(results)
	styles := make([]pipeline.Style, 0, len(fastest))
	for s := range fastest {
		styles = append(styles, s)
	}
	sort.Slice(styles, func(i, j int) bool { return styles[i] < styles[j] })
	parts := make([]string, 0, len(styles))
	for _, s := range styles {
		parts = append(parts, s.Slug()+"="+fastest[s])
	}
	_, err := fmt.Fprintf(w, "\nFastest: %s\n", strings.Join(parts, ", "))
	return err
}

// SyntheticSource paints a deterministic photo-like image with gradients
// and hard edges, used when no input file is given.
func SyntheticSource(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			c := color.RGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: 96,
				A: 255,
			}
			if (x/32+y/32)%2 == 0 {
				c.B = 224
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
