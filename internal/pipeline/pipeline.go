// Package pipeline implements the ordered image transform: rotate, crop,
// brightness/contrast, one stylistic filter and an optional grid overlay.
// Every stage is a pure function of its input buffer and the Params.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// DefaultMaxDimension bounds the longer side of a normalized source.
const DefaultMaxDimension = 2048

// Config holds configuration for the transform pipeline.
type Config struct {
	// Backend names the registered style backend ("native", "opencv").
	Backend string
	// MaxDimension fits sources into a square of this size; 0 disables.
	MaxDimension int
}

// DefaultConfig returns the native backend with the default preview bound.
func DefaultConfig() Config {
	return Config{
		Backend:      NativeBackend,
		MaxDimension: DefaultMaxDimension,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithBackend selects the style backend by name.
func (b *Builder) WithBackend(name string) *Builder {
	if name != "" {
		b.cfg.Backend = name
	}
	return b
}

// WithMaxDimension sets the normalization bound. Negative values are ignored.
func (b *Builder) WithMaxDimension(n int) *Builder {
	if n >= 0 {
		b.cfg.MaxDimension = n
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Build resolves the backend and returns a ready pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	backend, err := NewBackend(b.cfg.Backend)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: b.cfg, backend: backend}, nil
}

// Pipeline renders sources through the fixed stage order. It holds no
// per-render state and is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	backend Backend
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// BackendName returns the name of the active style backend.
func (p *Pipeline) BackendName() string { return p.backend.Name() }

// Normalize converts a decoded image into the canonical source buffer.
func (p *Pipeline) Normalize(img image.Image) *imgbuf.Buffer {
	return Normalize(img, p.cfg.MaxDimension)
}

// Run normalizes img and renders it.
func (p *Pipeline) Run(ctx context.Context, img image.Image, params Params) (*Result, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	t := common.NewNamedTimer(string(StageNormalize))
	src := p.Normalize(img)
	t.Stop()

	res, err := p.Render(ctx, src, params)
	if err != nil {
		return nil, err
	}
	res.Timings[StageNormalize] = t.Duration()
	res.Total += t.Duration()
	return res, nil
}

// Render applies the stages to an already normalized source.
func (p *Pipeline) Render(ctx context.Context, src *imgbuf.Buffer, params Params) (*Result, error) {
	if src.Empty() {
		return nil, errors.New("empty source image")
	}
	total := common.NewTimer()
	res := &Result{Params: params, Backend: p.backend.Name(), Timings: make(map[Stage]time.Duration, 6)}

	stages := []struct {
		stage Stage
		skip  bool
		fn    func(*imgbuf.Buffer) (*imgbuf.Buffer, error)
	}{
		{StageRotate, params.Quadrant() == 0, func(b *imgbuf.Buffer) (*imgbuf.Buffer, error) {
			return Rotate(b, params.Rotation), nil
		}},
		{StageCrop, params.Crop.IsZero(), func(b *imgbuf.Buffer) (*imgbuf.Buffer, error) {
			return CropImage(b, params.Crop), nil
		}},
		{StageAdjust, false, func(b *imgbuf.Buffer) (*imgbuf.Buffer, error) {
			return AdjustBrightnessContrast(b, params.Brightness, params.Contrast), nil
		}},
		{StageStyle, false, func(b *imgbuf.Buffer) (*imgbuf.Buffer, error) {
			return p.backend.Apply(params.Style, b, params)
		}},
		{StageGrid, !params.ShowGrid, func(b *imgbuf.Buffer) (*imgbuf.Buffer, error) {
			return DrawGrid(b, params.Grid()), nil
		}},
	}

	cur := src.ToBGR()
	for _, s := range stages {
		if s.skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, d, err := runStage(s.stage, cur, s.fn)
		res.Timings[s.stage] = d
		if err != nil {
			slog.Debug("Render stage failed", "stage", s.stage, "error", err)
			return nil, err
		}
		cur = out
	}

	res.Image = cur
	res.Width, res.Height, res.Channels = cur.Width, cur.Height, cur.Channels()
	res.Total = total.Stop()
	slog.Debug("Render complete",
		"style", params.Style.String(),
		"backend", res.Backend,
		"width", res.Width,
		"height", res.Height,
		"duration_ms", res.Total.Milliseconds())
	return res, nil
}

// runStage times fn and converts errors and panics into *StageError.
func runStage(stage Stage, in *imgbuf.Buffer, fn func(*imgbuf.Buffer) (*imgbuf.Buffer, error)) (out *imgbuf.Buffer, d time.Duration, err error) {
	t := common.NewNamedTimer(string(stage))
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		d = t.Stop()
	}()
	out, err = fn(in)
	if err != nil {
		return nil, 0, &StageError{Stage: stage, Err: err}
	}
	if out == nil {
		return nil, 0, &StageError{Stage: stage, Err: errors.New("stage produced no image")}
	}
	return out, 0, nil
}

var defaultPipeline = &Pipeline{
	cfg:     Config{Backend: NativeBackend},
	backend: newNativeBackend(),
}

// Process renders src with the native backend and returns the output buffer.
func Process(src *imgbuf.Buffer, params Params) (*imgbuf.Buffer, error) {
	res, err := defaultPipeline.Render(context.Background(), src, params)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}
