package providers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
)

// MockProvider simulates a hosted-checkout provider for local runs.
type MockProvider struct {
	name        string
	checkoutURL string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithCheckoutURL(base string) MockProviderOption {
	return func(p *MockProvider) { p.checkoutURL = base }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:        name,
		checkoutURL: "https://checkout.mock.local/pay",
		latency:     50 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.failureRate {
		return nil, fmt.Errorf("%w: %s: simulated failure for %s", domainErrors.ErrProviderUnavailable, p.name, req.TxnReference)
	}

	id := fmt.Sprintf("cs_mock_%s", uuid.New().String()[:8])
	return &PaymentResponse{
		ID:  id,
		URL: fmt.Sprintf("%s/%s", p.checkoutURL, id),
	}, nil
}
