package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
	"github.com/MeKo-Tech/glasscanvas/internal/session"
	"github.com/MeKo-Tech/glasscanvas/internal/version"
)

const (
	formatJSON    = "json"
	formatDataURI = "datauri"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
	errNotInTrace = errors.New("session is not at the trace step")
	errNotANumber = errors.New("not a number")
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := s.sessions.Len()
	sessionsActive.Set(float64(n))
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Backend:  s.pipeline.BackendName(),
		Sessions: n,
		Memory:   common.GetMemoryStats(),
	})
}

// stylesHandler lists the style modes and the accepted knob ranges.
func (s *Server) stylesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.stylesResponse())
}

func (s *Server) stylesResponse() StylesResponse {
	styles := pipeline.Styles()
	infos := make([]StyleInfo, len(styles))
	for i, st := range styles {
		infos[i] = StyleInfo{
			Name:               st.String(),
			Slug:               st.Slug(),
			SingleChannel:      st.SingleChannel(),
			UsesEdgeThresholds: st.UsesEdgeThresholds(),
		}
	}
	d := s.defaults
	return StylesResponse{
		Styles:   infos,
		Defaults: d,
		Ranges: map[string]Range{
			"crop":       {Min: 0, Max: pipeline.MaxCropPercent, Default: 0},
			"brightness": {Min: pipeline.MinBrightness, Max: pipeline.MaxBrightness, Default: float64(d.Brightness), Step: 1},
			"contrast":   {Min: pipeline.MinContrast, Max: pipeline.MaxContrast, Default: d.Contrast, Step: 0.1},
			"edge_low":   {Min: 0, Max: pipeline.MaxEdgeThreshold, Default: float64(d.EdgeLow), Step: 1},
			"edge_high":  {Min: 0, Max: pipeline.MaxEdgeThreshold, Default: float64(d.EdgeHigh), Step: 1},
			"grid_size":  {Min: pipeline.MinGridSize, Max: pipeline.MaxGridSize, Default: float64(d.Grid()), Step: 1},
		},
		Formats: append(s.encoders.Available(), formatJSON),
	}
}

// processHandler renders one uploaded image without creating a session.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	params, err := paramsFromValues(r.Form, s.defaults)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.pipeline.Run(ctx, img, params)
	observeRender("process", params.Style, res, err)
	if err != nil {
		slog.Warn("Process request failed", "style", params.Style.String(), "error", err)
		s.writeError(w, err)
		return
	}

	format := strings.ToLower(r.FormValue("format"))
	switch format {
	case formatJSON, formatDataURI:
		uri, err := codec.DataURI(res.Image)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, ProcessResult{
			Success:  true,
			DataURI:  uri,
			Width:    res.Width,
			Height:   res.Height,
			Channels: res.Channels,
			Backend:  res.Backend,
			Params:   res.Params,
			Timings:  res.TimingsMillis(),
			TotalMs:  common.Millis(res.Total),
		})
	default:
		if format == "" {
			format = "png"
		}
		s.writeImage(w, r, res.Image, format, "")
	}
}

// readUpload parses the multipart form and decodes its "image" file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	limit := s.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: limit is %d MB", errTooLarge, s.maxUploadMB)
		}
		return nil, fmt.Errorf("%w: failed to parse form data: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("%w: no image file provided", errBadRequest)
	}
	defer func() { _ = file.Close() }()

	uploadSizeBytes.Observe(float64(header.Size))
	img, meta, err := codec.Decode(file)
	if err != nil {
		return nil, err
	}
	slog.Debug("Upload decoded", "filename", header.Filename, "format", meta.Format,
		"width", meta.Width, "height", meta.Height, "bytes", meta.SizeBytes)
	return img, nil
}

// paramsFromValues overlays form or query values onto base.
func paramsFromValues(vals url.Values, base pipeline.Params) (pipeline.Params, error) {
	p := base
	ints := []struct {
		key string
		dst *int
	}{
		{"rotation", &p.Rotation},
		{"brightness", &p.Brightness},
		{"edge_low", &p.EdgeLow},
		{"edge_high", &p.EdgeHigh},
		{"grid_size", &p.GridSize},
	}
	for _, f := range ints {
		if raw := strings.TrimSpace(vals.Get(f.key)); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return p, &pipeline.ParamError{Field: f.key, Value: raw, Reason: errNotANumber.Error()}
			}
			*f.dst = v
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"crop_left", &p.Crop.Left},
		{"crop_right", &p.Crop.Right},
		{"crop_top", &p.Crop.Top},
		{"crop_bottom", &p.Crop.Bottom},
		{"contrast", &p.Contrast},
	}
	for _, f := range floats {
		if raw := strings.TrimSpace(vals.Get(f.key)); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return p, &pipeline.ParamError{Field: f.key, Value: raw, Reason: errNotANumber.Error()}
			}
			*f.dst = v
		}
	}

	if raw := vals.Get("show_grid"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return p, &pipeline.ParamError{Field: "show_grid", Value: raw, Reason: "not a boolean"}
		}
		p.ShowGrid = v
	}
	if _, ok := vals["style"]; ok {
		st, err := pipeline.ParseStyle(vals.Get("style"))
		if err != nil {
			return p, err
		}
		p.Style = st
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// writeImage encodes buf in format and writes it. A non-empty filename
// makes the response a download.
func (s *Server) writeImage(w http.ResponseWriter, r *http.Request, buf *imgbuf.Buffer, format, filename string) {
	data, enc, err := s.encoders.EncodeBuffer(buf, format, codec.Options{Quality: s.jpegQuality, Title: filename})
	if err != nil {
		s.writeError(w, err)
		return
	}
	etag := codec.ETag(data)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+"."+enc.Extension()))
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", enc.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write image response", "error", err)
	}
}

// requestContext bounds a render by the configured timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
}

// statusFor maps an error to its HTTP status and a hint for the client.
func statusFor(err error) (int, string) {
	var pe *pipeline.ParamError
	var se *pipeline.StageError
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, "upload a smaller image"
	case errors.As(err, &pe),
		errors.Is(err, pipeline.ErrUnknownStyle),
		errors.Is(err, codec.ErrUnsupportedImage),
		errors.Is(err, codec.ErrUnknownFormat),
		errors.Is(err, errBadRequest),
		errors.Is(err, errUnknownAction):
		return http.StatusBadRequest, ""
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "create a new session"
	case errors.Is(err, session.ErrNoSource),
		errors.Is(err, session.ErrNoRender),
		errors.Is(err, errNotInTrace):
		return http.StatusConflict, "restart from the upload step"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "try a smaller image or a simpler style"
	case errors.As(err, &se):
		return http.StatusInternalServerError, "the last good image is kept; try other settings"
	default:
		return http.StatusInternalServerError, ""
	}
}

// writeError writes err with the status statusFor picks.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, hint := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", code, "error", err)
	}
	s.writeErrorResponse(w, err.Error(), hint, code)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message, hint string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message, Hint: hint})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Log error, but can't send another response
		slog.Error("Failed to encode response", "error", err)
	}
}
