// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// LLMConfig selects one completion backend. The same shape is used for the
// "thinking" model that writes replies and the "reflecting" model that runs
// the analyzer and the pipeline stages.
type LLMConfig struct {
	Provider       string  `json:"provider" label:"Provider" env:"PROVIDER"`
	Model          string  `json:"model" label:"Model" env:"MODEL"`
	APIKey         string  `json:"api_key" label:"API Key" env:"API_KEY"`
	BaseURL        string  `json:"base_url" label:"Base URL" env:"BASE_URL"`
	Proxy          string  `json:"proxy,omitempty" label:"Proxy" env:"PROXY"`
	Temperature    float64 `json:"temperature" label:"Temperature" env:"TEMPERATURE"`
	MaxTokens      int     `json:"max_tokens" label:"Max Tokens" env:"MAX_TOKENS"`
	TimeoutSeconds int     `json:"timeout_seconds" label:"Timeout (s)" env:"TIMEOUT_SECONDS"`
}

// Options renders the per-request options understood by provider adapters.
func (c LLMConfig) Options() map[string]any {
	opts := map[string]any{}
	if c.Temperature > 0 {
		opts["temperature"] = c.Temperature
	}
	if c.MaxTokens > 0 {
		opts["max_tokens"] = c.MaxTokens
	}
	return opts
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// inherit fills empty fields from base.
func (c LLMConfig) inherit(base LLMConfig) LLMConfig {
	if c.Provider == "" {
		c.Provider = base.Provider
	}
	if c.Model == "" {
		c.Model = base.Model
	}
	if c.APIKey == "" {
		c.APIKey = base.APIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = base.BaseURL
	}
	if c.Proxy == "" {
		c.Proxy = base.Proxy
	}
	if c.Temperature == 0 {
		c.Temperature = base.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = base.MaxTokens
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = base.TimeoutSeconds
	}
	return c
}

type PipelineConfig struct {
	ChannelCapacity     int `json:"channel_capacity" label:"Channel Capacity" env:"EMOCLAW_PIPELINE_CHANNEL_CAPACITY"`
	StageTimeoutSeconds int `json:"stage_timeout_seconds" label:"Stage Timeout (s)" env:"EMOCLAW_PIPELINE_STAGE_TIMEOUT_SECONDS"`
	PollIntervalMS      int `json:"poll_interval_ms" label:"Poll Interval (ms)" env:"EMOCLAW_PIPELINE_POLL_INTERVAL_MS"`
}

func (c PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

func (c PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

type EmotionConfig struct {
	OutlierThreshold float64 `json:"outlier_threshold" label:"Outlier Threshold" env:"EMOCLAW_EMOTION_OUTLIER_THRESHOLD"`
	HistoryWindow    int     `json:"history_window" label:"History Window" env:"EMOCLAW_EMOTION_HISTORY_WINDOW"`
}

type RateLimitsConfig struct {
	Enabled               bool `json:"enabled" label:"Enabled" env:"EMOCLAW_RATE_LIMITS_ENABLED"`
	RequestsPerMinute     int  `json:"requests_per_minute" label:"Requests Per Minute" env:"EMOCLAW_RATE_LIMITS_REQUESTS_PER_MINUTE"`
	PerUserLimit          bool `json:"per_user_limit" label:"Per-User Limit" env:"EMOCLAW_RATE_LIMITS_PER_USER_LIMIT"`
	UserRequestsPerMinute int  `json:"user_requests_per_minute" label:"User Requests Per Minute" env:"EMOCLAW_RATE_LIMITS_USER_REQUESTS_PER_MINUTE"`
}

type WebSocketConfig struct {
	Enabled bool   `json:"enabled" label:"Enabled" env:"EMOCLAW_WEBSOCKET_ENABLED"`
	Host    string `json:"host" label:"Host" env:"EMOCLAW_WEBSOCKET_HOST"`
	Port    int    `json:"port" label:"Port" env:"EMOCLAW_WEBSOCKET_PORT"`
	Path    string `json:"path" label:"Path" env:"EMOCLAW_WEBSOCKET_PATH"`
	APIKey  string `json:"api_key,omitempty" label:"API Key" env:"EMOCLAW_WEBSOCKET_API_KEY"`
}

func (c WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level string `json:"level" label:"Level" env:"EMOCLAW_LOG_LEVEL"`
	File  string `json:"file,omitempty" label:"File" env:"EMOCLAW_LOG_FILE"`
}

type Config struct {
	LLM           LLMConfig        `json:"llm" label:"LLM" envPrefix:"EMOCLAW_LLM_"`
	ReflectionLLM LLMConfig        `json:"reflection_llm" label:"Reflection LLM" envPrefix:"EMOCLAW_REFLECTION_LLM_"`
	Pipeline      PipelineConfig   `json:"pipeline" label:"Pipeline"`
	Emotion       EmotionConfig    `json:"emotion" label:"Emotion"`
	RateLimits    RateLimitsConfig `json:"rate_limits" label:"Rate Limits"`
	WebSocket     WebSocketConfig  `json:"websocket" label:"WebSocket"`
	Log           LogConfig        `json:"log" label:"Logging"`
	ResourcesPath string           `json:"resources_path" label:"Resources Path" env:"EMOCLAW_RESOURCES_PATH"`
	mu            sync.RWMutex
}

// Reflecting returns the reflection backend with empty fields inherited
// from the main LLM section.
func (c *Config) Reflecting() LLMConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ReflectionLLM.inherit(c.LLM)
}

func (c *Config) Thinking() LLMConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LLM
}

// ResolvedResourcesPath expands ~ in ResourcesPath.
func (c *Config) ResolvedResourcesPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.ResourcesPath)
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Pipeline.ChannelCapacity < 0 {
		return fmt.Errorf("pipeline.channel_capacity must not be negative, got %d", c.Pipeline.ChannelCapacity)
	}
	if c.Pipeline.StageTimeoutSeconds < 0 {
		return fmt.Errorf("pipeline.stage_timeout_seconds must not be negative, got %d", c.Pipeline.StageTimeoutSeconds)
	}
	if c.Pipeline.PollIntervalMS < 0 {
		return fmt.Errorf("pipeline.poll_interval_ms must not be negative, got %d", c.Pipeline.PollIntervalMS)
	}
	if c.Emotion.OutlierThreshold < 0 {
		return fmt.Errorf("emotion.outlier_threshold must not be negative, got %v", c.Emotion.OutlierThreshold)
	}
	if c.Emotion.HistoryWindow < 0 {
		return fmt.Errorf("emotion.history_window must not be negative, got %d", c.Emotion.HistoryWindow)
	}
	if c.LLM.TimeoutSeconds < 0 || c.ReflectionLLM.TimeoutSeconds < 0 {
		return fmt.Errorf("llm timeout_seconds must not be negative")
	}
	if c.WebSocket.Enabled && (c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535) {
		return fmt.Errorf("websocket.port out of range: %d", c.WebSocket.Port)
	}
	return nil
}

// LoadConfig reads path, overlays EMOCLAW_* environment variables and fills
// a missing OpenAI key from OPENAI_API_KEY. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.LLM.APIKey == "" && strings.EqualFold(cfg.LLM.Provider, "openai") {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
