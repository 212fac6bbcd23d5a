package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestServer returns a server with default settings and no size bound.
func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{MaxUploadMB: 5, TimeoutSec: 10}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// createTestImage creates a simple gradient test image.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			r := byte(x * 255 / max(width-1, 1))
			g := byte(y * 255 / max(height-1, 1))
			img.Set(x, y, color.RGBA{r, g, 90, 255})
		}
	}
	return img
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a form with an "image" file and extra fields.
func multipartBody(t *testing.T, data []byte, filename string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if data != nil {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

// do sends a request through the server's router.
func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, path string, img image.Image, fields map[string]string) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, encodeImageToPNG(t, img), "photo.png", fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return req
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// createSession uploads a test image and returns the new session.
func createSession(t *testing.T, s *Server, w, h int, fields map[string]string) SessionResponse {
	t.Helper()
	rec := do(t, s, uploadRequest(t, "/sessions", createTestImage(w, h), fields))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[SessionResponse](t, rec)
}

func postAction(t *testing.T, s *Server, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/actions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}
