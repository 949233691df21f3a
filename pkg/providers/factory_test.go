// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package providers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emoclaw/pkg/config"
	anthropicprovider "github.com/sipeed/emoclaw/pkg/providers/anthropic"
	"github.com/sipeed/emoclaw/pkg/providers/openai_sdk"
)

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		raw          string
		wantProvider string
		wantModel    string
	}{
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"claude/claude-sonnet-4.6", "anthropic", "claude-sonnet-4.6"},
		{"ollama/llama3.2", "ollama", "llama3.2"},
		{"gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"meta-llama/llama-3-70b", "openai", "meta-llama/llama-3-70b"},
		{"  groq/llama-3.1-70b  ", "groq", "llama-3.1-70b"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref := ParseModelRef(tt.raw, "openai")
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantProvider, ref.Provider)
			assert.Equal(t, tt.wantModel, ref.Model)
		})
	}

	assert.Nil(t, ParseModelRef("  ", "openai"))
	assert.Nil(t, ParseModelRef("openai/", "openai"))
}

func TestResolveProviderSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		want    providerSelection
		wantErr string
	}{
		{
			name: "openai default base",
			cfg:  config.LLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk"},
			want: providerSelection{name: "openai", protocol: protocolOpenAI, apiKey: "sk", apiBase: "https://api.openai.com/v1", model: "gpt-4o"},
		},
		{
			name: "alias and explicit base",
			cfg:  config.LLMConfig{Provider: "Claude", Model: "claude-haiku", APIKey: "k", BaseURL: "http://proxy.local"},
			want: providerSelection{name: "anthropic", protocol: protocolAnthropic, apiKey: "k", apiBase: "http://proxy.local", model: "claude-haiku"},
		},
		{
			name: "ollama needs no key",
			cfg:  config.LLMConfig{Provider: "ollama", Model: "llama3"},
			want: providerSelection{name: "ollama", protocol: protocolOpenAI, apiKey: "ollama", apiBase: "http://localhost:11434/v1", model: "llama3"},
		},
		{
			name: "provider inferred from model prefix",
			cfg:  config.LLMConfig{Model: "ollama/llama3"},
			want: providerSelection{name: "ollama", protocol: protocolOpenAI, apiKey: "ollama", apiBase: "http://localhost:11434/v1", model: "llama3"},
		},
		{
			name:    "missing key",
			cfg:     config.LLMConfig{Provider: "groq", Model: "llama"},
			wantErr: "no API key",
		},
		{
			name:    "vllm without base",
			cfg:     config.LLMConfig{Provider: "vllm", Model: "qwen"},
			wantErr: "no API base",
		},
		{
			name:    "unknown provider",
			cfg:     config.LLMConfig{Provider: "acme", APIKey: "x"},
			wantErr: "unknown provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveProviderSelection(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateProvider_Types(t *testing.T) {
	p, model, err := CreateProvider(config.LLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk"})
	require.NoError(t, err)
	assert.IsType(t, &openai_sdk.Provider{}, p)
	assert.Equal(t, "gpt-4o", model)

	p, _, err = CreateProvider(config.LLMConfig{Provider: "anthropic", APIKey: "sk"})
	require.NoError(t, err)
	assert.IsType(t, &anthropicprovider.Provider{}, p)
}

func TestCreateCompleter_SendsOptions(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"calm down"}}]}`))
	}))
	defer server.Close()

	c, err := CreateCompleter(config.LLMConfig{
		Provider:    "vllm",
		Model:       "qwen2.5",
		BaseURL:     server.URL,
		Temperature: 0.4,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", c.Model())

	out, err := c.Complete(t.Context(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "calm down", out)
	assert.Equal(t, "qwen2.5", body["model"])
	assert.Equal(t, 0.4, body["temperature"])
	assert.EqualValues(t, 64, body["max_completion_tokens"])
}
