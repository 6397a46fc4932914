package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/tidwall/gjson"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	userAgent          = "Agentblocks-Http-Client/1.0"
	bodyPreviewLimit   = 256
)

// statusError is a non-2xx response. Message is the server's own error text
// when the body carries one.
type statusError struct {
	StatusCode int
	Message    string
}

func (e *statusError) Error() string {
	return e.Message
}

// jsonDoer sends JSON requests and returns the raw response body of 2xx
// responses.
type jsonDoer struct {
	client  *http.Client
	logger  types.Logger
	headers map[string]string
}

func parseTimeout(raw string, logger types.Logger) time.Duration {
	if raw == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn().Str("timeout", raw).Msg("Invalid provider timeout, using default")
		return defaultHTTPTimeout
	}
	return d
}

func (d *jsonDoer) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	var reqBodyBytes []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body to JSON: %w", err)
		}
		reqBody = bytes.NewReader(b)
		reqBodyBytes = b
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	d.logger.Debug().Str("method", method).Str("url", url).Msg("Making HTTP request")
	if len(reqBodyBytes) > 0 {
		d.logger.Debug().Str("body_preview", preview(reqBodyBytes)).Msg("Request body")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	d.logger.Debug().Int("status_code", resp.StatusCode).Str("body_preview", preview(respBody)).Msg("Received HTTP response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, respBody)}
	}
	if len(respBody) > 0 && !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("response from %s is not valid JSON", url)
	}
	return respBody, nil
}

// errorMessage pulls a human readable message out of an error body. It
// understands {"error": "..."} and {"error": {"message": "..."}}.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		res := gjson.GetManyBytes(body, "error.message", "error", "message")
		for _, r := range res {
			if r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= bodyPreviewLimit {
		return fmt.Sprintf("HTTP %d: %s", status, text)
	}
	return fmt.Sprintf("HTTP %d", status)
}

func preview(b []byte) string {
	s := string(b)
	if len(s) > bodyPreviewLimit {
		return s[:bodyPreviewLimit] + "..."
	}
	return s
}
