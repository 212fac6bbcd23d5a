package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// RenderAction runs the pipeline for s and returns the action recording the
// outcome, tagged with the revision it was computed from.
func RenderAction(ctx context.Context, p *pipeline.Pipeline, s State) Action {
	if !s.HasSource() {
		return RenderFailed{Err: ErrNoSource, Revision: s.Revision}
	}
	res, err := p.Render(ctx, s.Source, s.Params)
	if err != nil {
		slog.Warn("Render failed, keeping last processed image",
			"revision", s.Revision, "style", s.Params.Style.String(), "error", err)
		return RenderFailed{Err: fmt.Errorf("render: %w", err), Revision: s.Revision}
	}
	return Rendered{Image: res.Image, Revision: s.Revision}
}

// Render runs the pipeline for s and folds the outcome into the returned
// state. On failure the previous processed image is kept and Err is set.
func Render(ctx context.Context, p *pipeline.Pipeline, s State) State {
	return Reduce(s, RenderAction(ctx, p, s))
}
