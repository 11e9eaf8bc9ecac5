package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimitedProvider wraps a Provider with a client-side token-bucket rate
// limiter so bursts of quality evaluations cannot trip provider rate limits.
type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps the provider with a requests-per-second cap.
// A non-positive rps returns the provider unwrapped.
func NewRateLimited(inner Provider, rps float64) Provider {
	if rps <= 0 {
		return inner
	}
	return &rateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *rateLimitedProvider) Name() string {
	return p.inner.Name()
}

func (p *rateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, TranslateError(p.inner.Name(), err)
	}
	return p.inner.Complete(ctx, req)
}

var _ Provider = (*rateLimitedProvider)(nil)
