package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
	"github.com/MeKo-Tech/glasscanvas/internal/session"
)

// DefaultSessionTTL is used when Config.SessionTTL is unset.
const DefaultSessionTTL = time.Hour

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    *pipeline.Pipeline
	sessions    *session.Store
	encoders    *codec.Registry
	defaults    pipeline.Params
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	jpegQuality int
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	SessionTTL     time.Duration
	JPEGQuality    int
	PipelineConfig pipeline.Config
	// Defaults seeds the params of new sessions and stateless requests.
	Defaults  pipeline.Params
	RateLimit RateLimitConfig
}

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string             `json:"status"`
	Version  string             `json:"version,omitempty"`
	Time     string             `json:"time"`
	Backend  string             `json:"backend"`
	Sessions int                `json:"sessions"`
	Memory   common.MemoryStats `json:"memory"`
}

// StyleInfo describes one style mode.
type StyleInfo struct {
	Name               string `json:"name"`
	Slug               string `json:"slug"`
	SingleChannel      bool   `json:"single_channel"`
	UsesEdgeThresholds bool   `json:"uses_edge_thresholds"`
}

// Range is the accepted interval of a numeric control.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step,omitempty"`
}

// StylesResponse is returned by GET /styles.
type StylesResponse struct {
	Styles   []StyleInfo      `json:"styles"`
	Defaults pipeline.Params  `json:"defaults"`
	Ranges   map[string]Range `json:"ranges"`
	Formats  []string         `json:"formats"`
}

// ProcessResult is the JSON body of POST /process?format=json.
type ProcessResult struct {
	Success  bool               `json:"success"`
	DataURI  string             `json:"data_uri"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Channels int                `json:"channels"`
	Backend  string             `json:"backend"`
	Params   pipeline.Params    `json:"params"`
	Timings  map[string]float64 `json:"timings_ms"`
	TotalMs  float64            `json:"total_ms"`
}

// SessionResponse summarizes a session state.
type SessionResponse struct {
	Success   bool            `json:"success"`
	ID        string          `json:"id"`
	Step      session.Step    `json:"step"`
	Params    pipeline.Params `json:"params"`
	Revision  uint64          `json:"revision"`
	Version   uint64          `json:"version"`
	HasSource bool            `json:"has_source"`
	HasRender bool            `json:"has_render"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PayloadResponse is the trace hand-off.
type PayloadResponse struct {
	Success bool   `json:"success"`
	DataURI string `json:"data_uri"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	ETag    string `json:"etag"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Hint    string `json:"hint,omitempty"`
}

// NewServer creates a new server instance.
func NewServer(config Config) (*Server, error) {
	pc := config.PipelineConfig
	pl, err := pipeline.NewBuilder().
		WithBackend(pc.Backend).
		WithMaxDimension(pc.MaxDimension).
		Build()
	if err != nil {
		return nil, err
	}

	defaults := config.Defaults
	if defaults.Contrast == 0 {
		defaults = pipeline.DefaultParams()
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 50
	}
	timeout := config.TimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	cors := config.CORSOrigin
	if cors == "" {
		cors = "*"
	}

	s := &Server{
		pipeline:    pl,
		sessions:    session.NewStore(ttl),
		encoders:    codec.NewRegistry(),
		defaults:    defaults,
		corsOrigin:  cors,
		maxUploadMB: maxUpload,
		timeoutSec:  timeout,
		jpegQuality: config.JPEGQuality,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Sessions exposes the session store.
func (s *Server) Sessions() *session.Store { return s.sessions }

// RunJanitor expires idle sessions and clients until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.rateLimiter != nil {
		go s.rateLimiter.Run(ctx, interval)
	}
	s.sessions.Run(ctx, interval)
}

// Close releases server resources.
func (s *Server) Close() error {
	sessionsActive.Set(0)
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/styles", s.corsMiddleware(s.stylesHandler))
	mux.HandleFunc("/process", s.corsMiddleware(s.rateLimitMiddleware(s.processHandler)))
	mux.HandleFunc("/sessions", s.corsMiddleware(s.rateLimitMiddleware(s.createSessionHandler)))
	mux.HandleFunc("/sessions/{id}", s.corsMiddleware(s.sessionHandler))
	mux.HandleFunc("/sessions/{id}/image", s.corsMiddleware(s.rateLimitMiddleware(s.sessionImageHandler)))
	mux.HandleFunc("/sessions/{id}/actions", s.corsMiddleware(s.rateLimitMiddleware(s.sessionActionHandler)))
	mux.HandleFunc("/sessions/{id}/preview", s.corsMiddleware(s.previewHandler))
	mux.HandleFunc("/sessions/{id}/payload", s.corsMiddleware(s.payloadHandler))
	mux.HandleFunc("/sessions/{id}/export", s.corsMiddleware(s.exportHandler))
	mux.HandleFunc("/ws", s.previewWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
