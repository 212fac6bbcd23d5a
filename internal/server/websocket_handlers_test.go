package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
)

// mockConn records written messages.
type mockConn struct {
	messages [][]byte
	err      error
}

func (m *mockConn) WriteMessage(_ int, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, data)
	return nil
}

func readResponse(t *testing.T, conn *websocket.Conn) WebSocketResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var resp WebSocketResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestWebSocketPreview(t *testing.T) {
	s := newTestServer(t)
	created := createSession(t, s, 8, 6, nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + created.ID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	state := readResponse(t, conn)
	assert.Equal(t, "state", state.Type)
	assert.Equal(t, created.ID, state.Session)
	assert.Equal(t, 8, state.Width)
	assert.NotEmpty(t, state.DataURI)

	require.NoError(t, conn.WriteJSON(ActionRequest{
		Action: "set_params",
		Params: json.RawMessage(`{"style":"Grayscale","crop_top":50}`),
	}))
	render := readResponse(t, conn)
	assert.Equal(t, "render", render.Type)
	assert.Equal(t, "completed", render.Status)
	assert.NotEmpty(t, render.RequestID)
	assert.Greater(t, render.Revision, state.Revision)
	assert.Equal(t, 3, render.Height)

	img, err := codec.ParseDataURI(render.DataURI)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"sharpen"}`)))
	bad := readResponse(t, conn)
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, "invalid_request", bad.ErrorType)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{{`)))
	bad = readResponse(t, conn)
	assert.Equal(t, "invalid_request", bad.ErrorType)
}

func TestWebSocketUnknownSession(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendWebSocketError(t *testing.T) {
	s := &Server{}
	conn := &mockConn{}
	s.sendWebSocketError(conn, "invalid_request", "broken")
	require.Len(t, conn.messages, 1)

	var resp WebSocketResponse
	require.NoError(t, json.Unmarshal(conn.messages[0], &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "broken", resp.Error)

	// write failures are logged, not propagated
	failing := &mockConn{err: errors.New("closed")}
	s.sendWebSocketError(failing, "x", "y")
	assert.Empty(t, failing.messages)
}
