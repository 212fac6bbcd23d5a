package support

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/glasscanvas/internal/config"
	"github.com/MeKo-Tech/glasscanvas/internal/server"
)

// HTTPTestServerWrapper runs the real server in-process on a random port.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// startTestHTTPServer starts a server built from the default configuration
// with the given overrides applied.
func (testCtx *TestContext) startTestHTTPServer(mutate func(*server.Config)) error {
	if testCtx.HTTPTestServer != nil {
		testCtx.stopTestHTTPServer()
	}

	cfg := config.DefaultConfig()
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	sc := server.Config{
		Host:           "127.0.0.1",
		CORSOrigin:     cfg.Server.CORSOrigin,
		MaxUploadMB:    int64(cfg.Server.MaxUploadMB),
		TimeoutSec:     cfg.Server.TimeoutSec,
		SessionTTL:     time.Duration(cfg.Server.SessionTTLMin) * time.Minute,
		JPEGQuality:    cfg.Output.JPEGQuality,
		PipelineConfig: cfg.ToPipelineConfig(),
		Defaults:       params,
	}
	if mutate != nil {
		mutate(&sc)
	}

	srv, err := server.NewServer(sc)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(srv.Handler()),
		TestServer: srv,
	}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() {
	if testCtx.HTTPTestServer == nil {
		return
	}
	testCtx.HTTPTestServer.Server.Close()
	_ = testCtx.HTTPTestServer.TestServer.Close()
	testCtx.HTTPTestServer = nil
}

// endpointURL expands {session} and prefixes the server URL.
func (testCtx *TestContext) endpointURL(endpoint string) (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	endpoint = strings.ReplaceAll(endpoint, "{session}", testCtx.SessionID)
	return testCtx.HTTPTestServer.Server.URL + endpoint, nil
}

// do sends a request and records the response.
func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := testCtx.HTTPTestServer.Server.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

func (testCtx *TestContext) request(method, endpoint, contentType string, body io.Reader) error {
	u, err := testCtx.endpointURL(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return testCtx.do(req)
}

// uploadImage posts a multipart form with an "image" part and extra fields.
func (testCtx *TestContext) uploadImage(endpoint, filename string, data []byte, fields map[string]string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return testCtx.request(http.MethodPost, endpoint, mw.FormDataContentType(), &body)
}
