package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/session"
)

var errUnknownAction = errors.New("unknown action")

// ActionRequest is the JSON body of POST /sessions/{id}/actions and the
// WebSocket message format.
type ActionRequest struct {
	Action string `json:"action"`
	// Params is merged onto the current params for "set_params".
	Params json.RawMessage `json:"params,omitempty"`
}

// toAction resolves req against the current state.
func (req ActionRequest) toAction(cur session.State) (session.Action, error) {
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "next":
		return session.Next{}, nil
	case "back":
		return session.Back{}, nil
	case "rotate_left":
		return session.RotateLeft{}, nil
	case "rotate_right":
		return session.RotateRight{}, nil
	case "reset":
		return session.Reset{}, nil
	case "set_params":
		p := cur.Params
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return nil, fmt.Errorf("%w: params: %v", errBadRequest, err)
			}
		}
		return session.SetParams{Params: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, req.Action)
	}
}

func newSessionResponse(id string, st session.State) SessionResponse {
	resp := SessionResponse{
		Success:   true,
		ID:        id,
		Step:      st.Step,
		Params:    st.Params,
		Revision:  st.Revision,
		Version:   st.Version,
		HasSource: st.HasSource(),
		HasRender: st.HasRender(),
		Error:     st.Err,
	}
	if st.HasRender() {
		resp.Width, resp.Height = st.Processed.Width, st.Processed.Height
	}
	return resp
}

// createSessionHandler starts a session from an uploaded image and renders
// it with the default params, overlaid with any form fields.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
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
	params.Rotation = 0

	st := session.NewState()
	st = session.Reduce(st, session.SetParams{Params: params})
	st = session.Reduce(st, session.Upload{Image: s.pipeline.Normalize(img)})
	st = session.Reduce(st, session.Next{})

	id, err := s.sessions.Create(st)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sessionsActive.Set(float64(s.sessions.Len()))

	ctx, cancel := s.requestContext(r)
	defer cancel()
	st, err = s.renderSession(ctx, id, st, "session")
	if err != nil {
		s.writeError(w, err)
		return
	}
	slog.Info("Session created", "session", id, "width", st.Source.Width, "height", st.Source.Height)
	s.writeJSON(w, http.StatusCreated, newSessionResponse(id, st))
}

// sessionHandler returns (GET) or discards (DELETE) a session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		st, err := s.sessions.Get(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, newSessionResponse(id, st))
	case http.MethodDelete:
		if !s.sessions.Delete(id) {
			s.writeError(w, fmt.Errorf("%w: %s", session.ErrNotFound, id))
			return
		}
		sessionsActive.Set(float64(s.sessions.Len()))
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// sessionImageHandler replaces the source image of a session.
func (s *Server) sessionImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		s.writeError(w, err)
		return
	}

	img, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.sessions.Dispatch(id, session.Upload{Image: s.pipeline.Normalize(img)})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if st.Step == session.StepUpload {
		if st, err = s.sessions.Dispatch(id, session.Next{}); err != nil {
			s.writeError(w, err)
			return
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	st, err = s.renderSession(ctx, id, st, "session")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionResponse(id, st))
}

// sessionActionHandler applies one JSON action and re-renders when the
// source or params changed.
func (s *Server) sessionActionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	st, err := s.applyAction(ctx, r.PathValue("id"), req, "session")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionResponse(r.PathValue("id"), st))
}

// applyAction dispatches req atomically against the stored state, then
// renders if the revision moved.
func (s *Server) applyAction(ctx context.Context, id string, req ActionRequest, source string) (session.State, error) {
	var before uint64
	st, err := s.sessions.Update(id, func(cur session.State) (session.State, error) {
		a, err := req.toAction(cur)
		if err != nil {
			return cur, err
		}
		if err := session.Check(cur, a); err != nil {
			return cur, err
		}
		before = cur.Revision
		return session.Reduce(cur, a), nil
	})
	if err != nil {
		return st, err
	}
	if st.Revision == before || !st.HasSource() {
		return st, nil
	}
	return s.renderSession(ctx, id, st, source)
}

// renderSession renders st and folds the outcome into the stored session.
// A failed render keeps the last good image and surfaces in State.Err.
func (s *Server) renderSession(ctx context.Context, id string, st session.State, source string) (session.State, error) {
	act := session.RenderAction(ctx, s.pipeline, st)
	var renderErr error
	if failed, ok := act.(session.RenderFailed); ok {
		renderErr = failed.Err
	}
	observeRender(source, st.Params.Style, nil, renderErr)
	return s.sessions.Dispatch(id, act)
}

// previewHandler serves the last processed image as PNG.
func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !st.HasRender() {
		s.writeError(w, fmt.Errorf("%w: nothing rendered yet", session.ErrNoRender))
		return
	}
	s.writeImage(w, r, st.Processed, "png", "")
}

// payloadHandler hands the processed image to the tracing surface.
func (s *Server) payloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if st.Step != session.StepTrace {
		s.writeError(w, fmt.Errorf("%w: current step is %s", errNotInTrace, st.Step))
		return
	}
	if !st.HasRender() {
		s.writeError(w, fmt.Errorf("%w: nothing rendered yet", session.ErrNoRender))
		return
	}

	uri, err := codec.DataURI(st.Processed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PayloadResponse{
		Success: true,
		DataURI: uri,
		Width:   st.Processed.Width,
		Height:  st.Processed.Height,
		ETag:    codec.ETag([]byte(uri)),
	})
}

// exportHandler downloads the processed image as png, jpeg or pdf.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !st.HasRender() {
		s.writeError(w, fmt.Errorf("%w: nothing rendered yet", session.ErrNoRender))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "png"
	}
	s.writeImage(w, r, st.Processed, format, "glasscanvas-"+st.Params.Style.Slug())
}
