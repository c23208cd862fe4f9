// Package httpclient 是 LLM provider 与 Tavily 共用的 JSON over HTTP 客户端：
// 5xx 与传输错误按退避重试，请求头注入 W3C trace context。
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/finrouter/pkg/utils/json"
)

// StatusError reports a response with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Client sends requests through a shared http.Client.
type Client struct {
	hc       *http.Client
	attempts uint
	backoff  time.Duration
}

// NewClient returns a client that tries each request 1+maxRetries times.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		hc:       &http.Client{Timeout: timeout},
		attempts: uint(maxRetries) + 1,
		backoff:  500 * time.Millisecond,
	}
}

// DoRequest sends req, replaying the buffered body on every attempt.
// Responses below 500 are returned as is; the caller closes the body.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			if body != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
			r, err := c.hc.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				_ = r.Body.Close()
				return fmt.Errorf("server error, status code %d", r.StatusCode)
			}
			resp = r
			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoJSON sends req and decodes the body into v (skipped when v is nil).
func (c *Client) DoJSON(req *http.Request, v any) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON POSTs in as JSON with the extra headers and decodes into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(req, out)
}
