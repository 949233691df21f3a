// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package providers

import (
	"fmt"
	"strings"

	"github.com/sipeed/emoclaw/pkg/config"
	anthropicprovider "github.com/sipeed/emoclaw/pkg/providers/anthropic"
	"github.com/sipeed/emoclaw/pkg/providers/openai_sdk"
)

type protocol int

const (
	protocolOpenAI protocol = iota
	protocolAnthropic
)

// providerDefaults holds the wire protocol and default API base for one
// provider name.
type providerDefaults struct {
	protocol    protocol
	defaultBase string
	// keyless providers run locally and accept any key.
	keyless bool
}

// providerRegistry maps provider names to their defaults. Everything except
// anthropic speaks the OpenAI chat-completions protocol.
var providerRegistry = map[string]providerDefaults{
	"openai":     {protocol: protocolOpenAI, defaultBase: "https://api.openai.com/v1"},
	"openrouter": {protocol: protocolOpenAI, defaultBase: "https://openrouter.ai/api/v1"},
	"groq":       {protocol: protocolOpenAI, defaultBase: "https://api.groq.com/openai/v1"},
	"deepseek":   {protocol: protocolOpenAI, defaultBase: "https://api.deepseek.com/v1"},
	"mistral":    {protocol: protocolOpenAI, defaultBase: "https://api.mistral.ai/v1"},
	"ollama":     {protocol: protocolOpenAI, defaultBase: "http://localhost:11434/v1", keyless: true},
	"vllm":       {protocol: protocolOpenAI, keyless: true}, // no default base; requires explicit config
	"anthropic":  {protocol: protocolAnthropic, defaultBase: "https://api.anthropic.com"},
}

type providerSelection struct {
	name     string
	protocol protocol
	apiKey   string
	apiBase  string
	proxy    string
	model    string
}

// resolveProviderSelection picks the provider from cfg.Provider, or from a
// provider prefix on the model ("ollama/llama3") when Provider is empty.
func resolveProviderSelection(cfg config.LLMConfig) (providerSelection, error) {
	defaultProvider := cfg.Provider
	if strings.TrimSpace(defaultProvider) == "" {
		defaultProvider = "openai"
	}

	name := NormalizeProvider(defaultProvider)
	model := strings.TrimSpace(cfg.Model)
	if cfg.Provider == "" {
		if ref := ParseModelRef(model, defaultProvider); ref != nil {
			name = ref.Provider
			model = ref.Model
		}
	}

	entry, ok := providerRegistry[name]
	if !ok {
		return providerSelection{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	sel := providerSelection{
		name:     name,
		protocol: entry.protocol,
		apiKey:   cfg.APIKey,
		apiBase:  cfg.BaseURL,
		proxy:    cfg.Proxy,
		model:    model,
	}
	if sel.apiBase == "" {
		sel.apiBase = entry.defaultBase
	}
	if sel.apiBase == "" {
		return providerSelection{}, fmt.Errorf("no API base configured for provider %s", name)
	}
	if sel.apiKey == "" {
		if !entry.keyless {
			return providerSelection{}, fmt.Errorf("no API key configured for provider %s", name)
		}
		// the OpenAI client refuses to send a request without some key
		sel.apiKey = name
	}
	return sel, nil
}

// CreateProvider builds the provider described by cfg and returns it with
// the model to request.
func CreateProvider(cfg config.LLMConfig) (LLMProvider, string, error) {
	sel, err := resolveProviderSelection(cfg)
	if err != nil {
		return nil, "", err
	}

	switch sel.protocol {
	case protocolAnthropic:
		return anthropicprovider.NewProviderWithBaseURL(sel.apiKey, sel.apiBase), sel.model, nil
	default:
		return openai_sdk.NewProvider(
			sel.apiKey,
			sel.apiBase,
			sel.proxy,
			openai_sdk.WithRequestTimeout(cfg.Timeout()),
		), sel.model, nil
	}
}

// CreateCompleter is CreateProvider bound to the configured model and
// request options.
func CreateCompleter(cfg config.LLMConfig) (*ProviderCompleter, error) {
	provider, model, err := CreateProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewCompleter(provider, model, cfg.Options()), nil
}
