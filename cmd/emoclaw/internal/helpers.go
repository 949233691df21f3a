package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/pkg/config"
	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/prompt"
	"github.com/sipeed/emoclaw/pkg/providers"
	"github.com/sipeed/emoclaw/pkg/ratelimit"
)

const Logo = "🫀"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// GetConfigPath is the config file used when --config is not given.
func GetConfigPath() string {
	return config.ResolveRuntimePaths().ConfigPath
}

// ConfigPath returns the --config flag value visible to cmd, falling back
// to GetConfigPath.
func ConfigPath(cmd *cobra.Command) string {
	if cmd != nil {
		if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return GetConfigPath()
}

// Debug reports whether --debug is set on cmd or any parent.
func Debug(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flag("debug")
	return f != nil && f.Value.String() == "true"
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
		logger.DebugCF("cli", "Loaded environment file", map[string]any{"path": p})
	}
	return nil
}

// LoadConfig loads .env, then the config file at path, and validates it.
func LoadConfig(path string) (*config.Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetupLogging applies the configured level and log file. debug forces
// the debug level.
func SetupLogging(cfg *config.Config, debug bool) error {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return fmt.Errorf("enabling file logging: %w", err)
		}
	}
	return nil
}

// ProviderLimiter is the global budget shared by every completion call.
// It returns nil when rate limiting is disabled.
func ProviderLimiter(cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.RateLimits
	if !rl.Enabled {
		return nil
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: rl.RequestsPerMinute,
	})
}

// SubmitLimiter throttles submissions per user without touching the global
// budget, which ProviderLimiter already enforces on the model calls.
func SubmitLimiter(cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.RateLimits
	if !rl.Enabled || !rl.PerUserLimit {
		return nil
	}
	perUser := rl.UserRequestsPerMinute
	if perUser <= 0 {
		perUser = rl.RequestsPerMinute
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:               true,
		PerUserLimit:          true,
		UserRequestsPerMinute: perUser,
	})
}

func newCompleter(llm config.LLMConfig, limiter *ratelimit.Limiter) (*providers.ProviderCompleter, error) {
	provider, model, err := providers.CreateProvider(llm)
	if err != nil {
		return nil, err
	}
	return providers.NewCompleter(providers.NewRateLimitedProvider(provider, limiter), model, llm.Options()), nil
}

// NewCoordinator wires the thinking and reflecting models, the persona and
// the stage list from the resources file into a running coordinator.
func NewCoordinator(cfg *config.Config) (*coordinator.Coordinator, error) {
	res, err := coordinator.LoadResources(cfg.ResolvedResourcesPath())
	if err != nil {
		return nil, err
	}

	limiter := ProviderLimiter(cfg)
	thinking, err := newCompleter(cfg.Thinking(), limiter)
	if err != nil {
		return nil, fmt.Errorf("thinking model: %w", err)
	}
	reflecting, err := newCompleter(cfg.Reflecting(), limiter)
	if err != nil {
		return nil, fmt.Errorf("reflecting model: %w", err)
	}

	logger.InfoCF("cli", "Models ready", map[string]any{
		"thinking":   thinking.Model(),
		"reflecting": reflecting.Model(),
		"stages":     len(res.ReflectionStages),
	})

	return coordinator.New(prompt.NewGateway(thinking, reflecting, res.EmotionSetup), reflecting, coordinator.Options{
		Stages:           res.ReflectionStages,
		ChannelCapacity:  cfg.Pipeline.ChannelCapacity,
		StageTimeout:     cfg.Pipeline.StageTimeout(),
		OutlierThreshold: cfg.Emotion.OutlierThreshold,
		HistoryWindow:    cfg.Emotion.HistoryWindow,
	})
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
