// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package config

// DefaultConfig returns the default configuration for EmoClaw.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1024,
			TimeoutSeconds: 120,
		},
		Pipeline: PipelineConfig{
			ChannelCapacity:     16,
			StageTimeoutSeconds: 60,
			PollIntervalMS:      500,
		},
		Emotion: EmotionConfig{
			OutlierThreshold: 0.3,
			HistoryWindow:    5,
		},
		RateLimits: RateLimitsConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			PerUserLimit:      true,
		},
		WebSocket: WebSocketConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    18790,
			Path:    "/ws",
		},
		Log: LogConfig{
			Level: "info",
		},
		ResourcesPath: "~/.emoclaw/resources.json",
	}
}
