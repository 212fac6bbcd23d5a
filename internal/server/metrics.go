package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glasscanvas_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glasscanvas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Render metrics
	rendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glasscanvas_renders_total",
			Help: "Total number of pipeline renders",
		},
		[]string{"source", "style", "status"}, // source: process, session, websocket
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glasscanvas_render_duration_seconds",
			Help:    "Pipeline render duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"style"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glasscanvas_stage_duration_seconds",
			Help:    "Duration of a single pipeline stage in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"stage"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glasscanvas_sessions_active",
			Help: "Number of live editing sessions",
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glasscanvas_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glasscanvas_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glasscanvas_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glasscanvas_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// observeRender records the outcome of one render. res may be nil on failure.
func observeRender(source string, style pipeline.Style, res *pipeline.Result, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	rendersTotal.WithLabelValues(source, style.Slug(), status).Inc()
	if res == nil {
		return
	}
	renderDuration.WithLabelValues(style.Slug()).Observe(res.Total.Seconds())
	for stage, d := range res.Timings {
		stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	}
}
