package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/session"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS setting of the HTTP routes
		return true
	},
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketResponse is sent after every client message.
type WebSocketResponse struct {
	Type      string       `json:"type"`   // "state", "render" or "error"
	Status    string       `json:"status"` // "completed", "error"
	Session   string       `json:"session,omitempty"`
	Step      session.Step `json:"step"`
	Revision  uint64       `json:"revision"`
	Version   uint64       `json:"version"`
	DataURI   string       `json:"data_uri,omitempty"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorType string       `json:"error_type,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// previewWebSocketHandler streams a re-render of one session for every
// action the client sends. The session is chosen with ?session=ID.
func (s *Server) previewWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	st, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "session", id)

	s.sendWebSocketState(conn, "state", id, st, "")
	s.handleWebSocketConnection(r.Context(), conn, id)
}

// handleWebSocketConnection processes messages from a WebSocket connection.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn, id string) {
	// Set read deadline to prevent hanging connections
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Keep the connection alive; gorilla allows WriteControl concurrently
	// with WriteMessage.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, id, data)
		}
	}
}

// handleWebSocketMessage applies one action and answers with the new render.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, id string, data []byte) {
	var req ActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)

	rctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	defer cancel()
	st, err := s.applyAction(rctx, id, req, "websocket")
	if err != nil {
		code, _ := statusFor(err)
		errType := "processing_error"
		if code < http.StatusInternalServerError {
			errType = "invalid_request"
		}
		s.sendWebSocketError(conn, errType, err.Error())
		return
	}
	s.sendWebSocketState(conn, "render", id, st, requestID)
}

// sendWebSocketState sends st with its processed image as a data URI.
func (s *Server) sendWebSocketState(conn WebSocketConnWriter, msgType, id string, st session.State, requestID string) {
	resp := WebSocketResponse{
		Type:      msgType,
		Status:    "completed",
		Session:   id,
		Step:      st.Step,
		Revision:  st.Revision,
		Version:   st.Version,
		Error:     st.Err,
		RequestID: requestID,
	}
	if st.HasRender() {
		uri, err := codec.DataURI(st.Processed)
		if err != nil {
			s.sendWebSocketError(conn, "processing_error", err.Error())
			return
		}
		resp.DataURI = uri
		resp.Width, resp.Height = st.Processed.Width, st.Processed.Height
	}
	s.sendWebSocketResponse(conn, resp)
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
