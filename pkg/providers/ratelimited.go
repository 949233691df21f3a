package providers

import (
	"context"
	"fmt"

	"github.com/sipeed/emoclaw/pkg/ratelimit"
)

// RateLimitedProvider waits on the global bucket of a Limiter before each
// call. The analyzer, the reply and every reflection stage share one
// upstream quota, so they share one limiter.
type RateLimitedProvider struct {
	inner   LLMProvider
	limiter *ratelimit.Limiter
}

// NewRateLimitedProvider wraps p. A nil or disabled limiter returns p as is.
func NewRateLimitedProvider(p LLMProvider, limiter *ratelimit.Limiter) LLMProvider {
	if !limiter.Enabled() {
		return p
	}
	return &RateLimitedProvider{inner: p, limiter: limiter}
}

func (p *RateLimitedProvider) Chat(
	ctx context.Context,
	messages []Message,
	model string,
	options map[string]any,
) (*LLMResponse, error) {
	if err := p.limiter.WaitForRequest(ctx, ""); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return p.inner.Chat(ctx, messages, model, options)
}

func (p *RateLimitedProvider) GetDefaultModel() string {
	return p.inner.GetDefaultModel()
}
