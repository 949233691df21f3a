package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvEmoClawConfig = "EMOCLAW_CONFIG"
	EnvEmoClawHome   = "EMOCLAW_HOME"
)

type RuntimePaths struct {
	HomeDir       string
	ConfigPath    string
	ResourcesPath string
	HistoryFile   string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvEmoClawConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvEmoClawHome)))
	if homeDir == "" {
		homeDir = defaultEmoClawHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultEmoClawHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".emoclaw"
	}
	return filepath.Join(home, ".emoclaw")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:       homeDir,
		ConfigPath:    configPath,
		ResourcesPath: filepath.Join(homeDir, "resources.json"),
		HistoryFile:   filepath.Join(homeDir, "history"),
	}
}
