package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	gt.NoError(t, err)
	gt.Equal(t, cfg.Audio.Sink, "malgo")
	gt.Equal(t, cfg.LogLevel, "info")

	engineConfig, err := cfg.engineConfig()
	gt.NoError(t, err)
	gt.Equal(t, engineConfig.WindowSize, 10)
	gt.Equal(t, engineConfig.PendingTimeout, 30*time.Second)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  url: ws://localhost:8080/session
  id: soul-1
audio:
  sink: none
engine:
  window_size: 20
  pending_timeout: 45s
  reduced_motion: true
  session_scoped: true
`)

	cfg, err := loadConfig(path)
	gt.NoError(t, err)
	gt.Equal(t, cfg.Session.URL, "ws://localhost:8080/session")
	gt.Equal(t, cfg.Session.ID, "soul-1")
	gt.Equal(t, cfg.Audio.Sink, "none")

	engineConfig, err := cfg.engineConfig()
	gt.NoError(t, err)
	gt.Equal(t, engineConfig.WindowSize, 20)
	gt.Equal(t, engineConfig.PendingTimeout, 45*time.Second)
	gt.True(t, engineConfig.ReducedMotion)
	gt.True(t, engineConfig.SessionScoped)

	// untouched settings keep their defaults
	gt.Equal(t, engineConfig.MaxBubbles, 5)
	gt.Equal(t, engineConfig.BubbleDuration, 12*time.Second)
	gt.Equal(t, engineConfig.FadeInFraction, 0.15)
}

func TestLoadConfigKeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, `
engine:
  window_size: 0
  max_bubbles: 0
  fade_in_fraction: 0
  reduced_motion: false
`)

	cfg, err := loadConfig(path)
	gt.NoError(t, err)

	engineConfig, err := cfg.engineConfig()
	gt.NoError(t, err)
	gt.Equal(t, engineConfig.WindowSize, 0)
	gt.Equal(t, engineConfig.MaxBubbles, 0)
	gt.Equal(t, engineConfig.FadeInFraction, 0.0)
	gt.False(t, engineConfig.ReducedMotion)

	// absent keys still fall back to the defaults
	gt.Equal(t, engineConfig.FadeOutStartFraction, 0.85)
	gt.Equal(t, engineConfig.PendingTimeout, 30*time.Second)
}

func TestLoadConfigRejectsInvalidFiles(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.Error(t, err)

	_, err = loadConfig(writeConfig(t, "session: [not, a, map"))
	gt.Error(t, err)

	_, err = loadConfig(writeConfig(t, "audio:\n  sink: speakers\n"))
	gt.Error(t, err)

	_, err = loadConfig(writeConfig(t, "engine:\n  fade_in_fraction: 1.5\n"))
	gt.Error(t, err)

	_, err = loadConfig(writeConfig(t, "engine:\n  window_size: -1\n"))
	gt.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	gt.Equal(t, parseLevel("DEBUG").String(), "DEBUG")
	gt.Equal(t, parseLevel("warning").String(), "WARN")
	gt.Equal(t, parseLevel("bogus").String(), "INFO")
}
