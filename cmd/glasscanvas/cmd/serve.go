package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/config"
	"github.com/MeKo-Tech/glasscanvas/internal/server"
)

// janitorInterval is how often idle sessions and rate-limit clients expire.
const janitorInterval = time.Minute

func newServeCommand(a *app) *cobra.Command {
	d := config.DefaultConfig().Server
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start an HTTP server with a stateless render endpoint, step-by-step editing
sessions and live WebSocket previews.

The server provides the following endpoints:
  GET  /health                   - Health check
  GET  /styles                   - Style modes and parameter defaults
  POST /process                  - Render an uploaded image in one call
  POST /sessions                 - Start an editing session
  POST /sessions/{id}/actions    - Rotate, set params, next, back, reset
  GET  /sessions/{id}/preview    - Last rendered image
  GET  /sessions/{id}/payload    - Trace hand-off as a data URI
  GET  /sessions/{id}/export     - Download as png, jpeg or pdf
  GET  /ws?session={id}          - Live previews
  GET  /metrics                  - Prometheus metrics

Examples:
  glasscanvas serve
  glasscanvas serve --port 8080
  glasscanvas serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", d.Host, "server host")
	f.IntP("port", "p", d.Port, "server port")
	f.String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	f.Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	f.Int("timeout", d.TimeoutSec, "request timeout in seconds")
	f.Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	f.Int("session-ttl", d.SessionTTLMin, "minutes before an idle session expires")
	f.Bool("rate-limit-enabled", d.RateLimit.Enabled, "enable rate limiting")
	f.Int("requests-per-minute", d.RateLimit.RequestsPerMinute, "maximum requests per minute per client")
	f.Int("requests-per-hour", d.RateLimit.RequestsPerHour, "maximum requests per hour per client")
	f.Int("max-requests-per-day", d.RateLimit.MaxRequestsPerDay, "maximum requests per day per client")
	f.Int64("max-data-per-day", d.RateLimit.MaxDataPerDay, "maximum uploaded bytes per day per client")
	f.String("backend", "", "style backend (defaults to pipeline.backend)")

	for flag, key := range map[string]string{
		"host":                 "server.host",
		"port":                 "server.port",
		"cors-origin":          "server.cors_origin",
		"max-upload-size":      "server.max_upload_mb",
		"timeout":              "server.timeout_sec",
		"shutdown-timeout":     "server.shutdown_timeout",
		"session-ttl":          "server.session_ttl_min",
		"rate-limit-enabled":   "server.rate_limit.enabled",
		"requests-per-minute":  "server.rate_limit.requests_per_minute",
		"requests-per-hour":    "server.rate_limit.requests_per_hour",
		"max-requests-per-day": "server.rate_limit.max_requests_per_day",
		"max-data-per-day":     "server.rate_limit.max_data_per_day",
		"backend":              "pipeline.backend",
	} {
		annotate(f, flag, key)
	}
	return cmd
}

// serverConfig maps the resolved configuration onto the HTTP server.
func serverConfig(cfg *config.Config) (server.Config, error) {
	params, err := cfg.Params()
	if err != nil {
		return server.Config{}, err
	}
	s := cfg.Server
	return server.Config{
		Host:           s.Host,
		Port:           s.Port,
		CORSOrigin:     s.CORSOrigin,
		MaxUploadMB:    int64(s.MaxUploadMB),
		TimeoutSec:     s.TimeoutSec,
		SessionTTL:     time.Duration(s.SessionTTLMin) * time.Minute,
		JPEGQuality:    cfg.Output.JPEGQuality,
		PipelineConfig: cfg.ToPipelineConfig(),
		Defaults:       params,
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimit.Enabled,
			RequestsPerMinute: s.RateLimit.RequestsPerMinute,
			RequestsPerHour:   s.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: s.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     s.RateLimit.MaxDataPerDay,
		},
	}, nil
}

func (a *app) runServe(cmd *cobra.Command) error {
	sc, err := serverConfig(a.config)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(sc)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go srv.RunJanitor(ctx, janitorInterval)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", sc.Host, sc.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(sc.TimeoutSec) * time.Second,
		// no WriteTimeout: WebSocket connections are long-lived
	}

	go func() {
		slog.Info("Starting GlassCanvas server", "host", sc.Host, "port", sc.Port,
			"backend", sc.PipelineConfig.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdownTimeout := time.Duration(a.config.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	cancel()
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}
