package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/httpclient"
	"github.com/payflow/payments/pkg/retry"
	"github.com/rs/zerolog"
)

const maxErrorBodyInMessage = 256

// HTTPCaller executes raw HTTP exchanges.
type HTTPCaller interface {
	MakeHTTPCall(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// HTTPProvider talks JSON to a provider service at baseURL.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	caller  HTTPCaller
	retry   retry.Config
	logger  zerolog.Logger
}

// NewHTTPProvider creates a provider adapter. Transport errors and 5xx
// responses are retried according to retryCfg.
func NewHTTPProvider(name, baseURL, apiKey string, caller HTTPCaller, retryCfg retry.Config, logger zerolog.Logger) *HTTPProvider {
	p := &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		caller:  caller,
		retry:   retryCfg,
		logger:  logger.With().Str("provider", name).Logger(),
	}
	p.retry.RetryIf = isRetryable
	p.retry.OnRetry = func(n uint, err error) {
		p.logger.Warn().Err(err).Uint("attempt", n+1).Msg("Provider call failed, retrying")
	}
	return p
}

func (p *HTTPProvider) Name() string { return p.name }

// CreatePayment posts req to {baseURL}/v1/payments and parses {id, url}.
func (p *HTTPProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create payment request: %w", err)
	}

	// Every attempt carries the same key so the provider can drop duplicates
	// when a retried request already went through.
	headers := map[string]string{
		"Content-Type":    "application/json",
		"Accept":          "application/json",
		"Idempotency-Key": req.TxnReference,
	}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	return retry.DoWithResult(ctx, p.retry, func() (*PaymentResponse, error) {
		resp, err := p.caller.MakeHTTPCall(ctx, &httpclient.Request{
			Method:  http.MethodPost,
			URL:     p.baseURL + "/v1/payments",
			Headers: headers,
			Body:    body,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
		}
		return parseCreatePaymentResponse(resp)
	})
}

func parseCreatePaymentResponse(resp *httpclient.Response) (*PaymentResponse, error) {
	if !resp.IsSuccess() {
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d", domainErrors.ErrProviderUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", domainErrors.ErrProviderRejected, resp.StatusCode, truncate(string(resp.Body)))
	}

	var out PaymentResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderInvalidResponse, err)
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("%w: missing id or url", domainErrors.ErrProviderInvalidResponse)
	}
	return &out, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, domainErrors.ErrProviderUnavailable)
}

func truncate(s string) string {
	if len(s) > maxErrorBodyInMessage {
		return s[:maxErrorBodyInMessage] + "..."
	}
	return s
}
