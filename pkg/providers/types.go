package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sipeed/emoclaw/pkg/providers/protocoltypes"
)

type (
	Message     = protocoltypes.Message
	LLMResponse = protocoltypes.LLMResponse
	UsageInfo   = protocoltypes.UsageInfo
	StatusError = protocoltypes.StatusError
)

// IsRetryable reports whether err is a provider reply that may succeed on a
// later attempt (rate limited or server side).
func IsRetryable(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Retryable()
}

// LLMProvider is a chat-completion backend.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, options map[string]any) (*LLMResponse, error)
	GetDefaultModel() string
}

// Completer is the "send messages, get text" capability the emotion layer
// depends on. Implementations never retry on their own.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ProviderCompleter binds an LLMProvider to one model and a fixed option set.
type ProviderCompleter struct {
	provider LLMProvider
	model    string
	options  map[string]any
}

// NewCompleter wraps provider. An empty model falls back to the provider's
// default model.
func NewCompleter(provider LLMProvider, model string, options map[string]any) *ProviderCompleter {
	if strings.TrimSpace(model) == "" {
		model = provider.GetDefaultModel()
	}
	return &ProviderCompleter{provider: provider, model: model, options: options}
}

func (c *ProviderCompleter) Model() string { return c.model }

func (c *ProviderCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.provider.Chat(ctx, messages, c.model, c.options)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("provider returned no response")
	}
	return resp.Content, nil
}

// UserMessage is a convenience for single-turn prompts.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}
