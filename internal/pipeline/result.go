package pipeline

import (
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// Result is the outcome of one render.
type Result struct {
	Image    *imgbuf.Buffer
	Params   Params
	Backend  string
	Width    int
	Height   int
	Channels int
	Timings  map[Stage]time.Duration
	Total    time.Duration
}

// TimingsMillis returns stage timings in milliseconds keyed by stage name.
func (r *Result) TimingsMillis() map[string]float64 {
	out := make(map[string]float64, len(r.Timings))
	for s, d := range r.Timings {
		out[string(s)] = common.Millis(d)
	}
	return out
}
