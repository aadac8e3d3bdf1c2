// Package httpclient is the outbound HTTP call engine used by provider adapters.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBodySize = 1 << 20

// Request describes one outbound HTTP exchange.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw result of an exchange. Non-2xx statuses are returned
// as responses, not errors; only transport failures produce an error.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Engine executes HTTP calls.
type Engine struct {
	client *http.Client
	logger zerolog.Logger
}

// NewEngine creates an Engine whose transport is instrumented with OpenTelemetry.
func NewEngine(timeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// MakeHTTPCall sends req and reads the full response body.
func (e *Engine) MakeHTTPCall(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Warn().Err(err).Str("method", req.Method).Str("url", req.URL).Msg("HTTP call failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	e.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Int("status", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("HTTP call completed")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}, nil
}
