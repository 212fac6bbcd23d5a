package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/glasscanvas/internal/server"
)

func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startTestHTTPServer(nil)
}

func (testCtx *TestContext) theServerIsRunningWithARateLimitOf(perMinute int) error {
	return testCtx.startTestHTTPServer(func(c *server.Config) {
		c.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	})
}

func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.request(http.MethodGet, endpoint, "", nil)
}

func (testCtx *TestContext) iGETWithTheLastETag(endpoint string) error {
	etag := testCtx.LastHTTPHeaders.Get("ETag")
	if etag == "" {
		return errors.New("previous response carried no ETag")
	}
	u, err := testCtx.endpointURL(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("If-None-Match", etag)
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadTo(name, endpoint string) error {
	return testCtx.iUploadToWith(name, endpoint, &godog.Table{})
}

// iUploadToWith sends extra form fields given as a two-column table.
func (testCtx *TestContext) iUploadToWith(name, endpoint string, fields *godog.Table) error {
	data, err := os.ReadFile(testCtx.path(name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	values := map[string]string{}
	for _, row := range fields.Rows {
		if len(row.Cells) >= 2 {
			values[row.Cells[0].Value] = row.Cells[1].Value
		}
	}
	return testCtx.uploadImage(endpoint, name, data, values)
}

func (testCtx *TestContext) iStartASessionWith(name string) error {
	if err := testCtx.iUploadTo(name, "/sessions"); err != nil {
		return err
	}
	if testCtx.LastHTTPStatusCode != http.StatusCreated {
		return fmt.Errorf("session not created: %d %s", testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	var resp server.SessionResponse
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &resp); err != nil {
		return fmt.Errorf("failed to parse session response: %w", err)
	}
	testCtx.SessionID = resp.ID
	return nil
}

func (testCtx *TestContext) sendAction(req server.ActionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return testCtx.request(http.MethodPost, "/sessions/{session}/actions", "application/json", bytes.NewReader(body))
}

func (testCtx *TestContext) iSendTheAction(action string) error {
	return testCtx.sendAction(server.ActionRequest{Action: action})
}

func (testCtx *TestContext) iSetTheSessionParamsTo(params *godog.DocString) error {
	return testCtx.sendAction(server.ActionRequest{Action: "set_params", Params: json.RawMessage(params.Content)})
}

func (testCtx *TestContext) theResponseStatusShouldBe(expected int) error {
	if testCtx.LastHTTPStatusCode != expected {
		return fmt.Errorf("expected status %d, got %d\nResponse: %s",
			expected, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nResponse: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a dotted JSON path against its
// formatted value, e.g. "params.style" -> "Sepia".
func (testCtx *TestContext) theResponseFieldShouldBe(field, expected string) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot navigate into '%s'", part)
		}
		if cur, ok = m[part]; !ok {
			return fmt.Errorf("field '%s' not found in response", field)
		}
	}
	if got := fmt.Sprint(cur); got != expected {
		return fmt.Errorf("field '%s' is %q, expected %q", field, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != expected {
		return fmt.Errorf("header %s is %q, expected %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeAnImageOfSize(format string, width, height int) error {
	cfg, got, err := image.DecodeConfig(strings.NewReader(testCtx.LastHTTPResponse))
	if err != nil {
		return fmt.Errorf("response is not an image: %w", err)
	}
	if got != format {
		return fmt.Errorf("response is %s, expected %s", got, format)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("response image is %dx%d, expected %dx%d", cfg.Width, cfg.Height, width, height)
	}
	return nil
}

// RegisterServerSteps registers HTTP server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the server is running with a rate limit of (\d+) requests? per minute$`,
		testCtx.theServerIsRunningWithARateLimitOf)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I GET "([^"]*)" with the last ETag$`, testCtx.iGETWithTheLastETag)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with:$`, testCtx.iUploadToWith)
	sc.Step(`^I start a session with "([^"]*)"$`, testCtx.iStartASessionWith)
	sc.Step(`^I send the action "([^"]*)"$`, testCtx.iSendTheAction)
	sc.Step(`^I set the session params to:$`, testCtx.iSetTheSessionParamsTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response should be a (png|jpeg) image of size (\d+)x(\d+)$`,
		testCtx.theResponseShouldBeAnImageOfSize)
}
