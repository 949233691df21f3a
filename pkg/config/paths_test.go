package config

import (
	"path/filepath"
	"testing"
)

func TestResolveRuntimePaths_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvEmoClawConfig, "")
	t.Setenv(EnvEmoClawHome, "")

	paths := ResolveRuntimePaths()
	wantHome := filepath.Join(home, ".emoclaw")

	if paths.HomeDir != wantHome {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, wantHome)
	}
	if paths.ConfigPath != filepath.Join(wantHome, "config.json") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(wantHome, "config.json"))
	}
	if paths.ResourcesPath != filepath.Join(wantHome, "resources.json") {
		t.Errorf("ResourcesPath = %q, want %q", paths.ResourcesPath, filepath.Join(wantHome, "resources.json"))
	}
	if paths.HistoryFile != filepath.Join(wantHome, "history") {
		t.Errorf("HistoryFile = %q, want %q", paths.HistoryFile, filepath.Join(wantHome, "history"))
	}
}

func TestResolveRuntimePaths_UsesHomeOverride(t *testing.T) {
	homeOverride := filepath.Join(t.TempDir(), "emo-home")
	t.Setenv(EnvEmoClawConfig, "")
	t.Setenv(EnvEmoClawHome, homeOverride)

	paths := ResolveRuntimePaths()

	if paths.HomeDir != homeOverride {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, homeOverride)
	}
	if paths.ConfigPath != filepath.Join(homeOverride, "config.json") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(homeOverride, "config.json"))
	}
}

func TestResolveRuntimePaths_ConfigOverrideWins(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.json")
	t.Setenv(EnvEmoClawConfig, configPath)
	t.Setenv(EnvEmoClawHome, filepath.Join(dir, "ignored"))

	paths := ResolveRuntimePaths()

	if paths.ConfigPath != configPath {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, configPath)
	}
	if paths.HomeDir != dir {
		t.Errorf("HomeDir = %q, want %q", paths.HomeDir, dir)
	}
}
