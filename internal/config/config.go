// Package config loads client settings from a YAML file with environment
// overrides. Every field has a sensible default so a missing file works.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName = "orchat.yaml"

	EnvBaseURL = "ORCHAT_BASE_URL"
	EnvConfig  = "ORCHAT_CONFIG"
)

type Config struct {
	// BaseURL is the orchestrator backend address.
	BaseURL string `yaml:"base_url"`
	// ThreadID pins the conversation identifier; empty means a fresh one
	// per session.
	ThreadID string `yaml:"thread_id"`
	// RequestTimeout applies to plain request/response calls, not the chat
	// stream.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BufferCap is the retained tail (in characters) of a delegated
	// agent's streamed output.
	BufferCap int `yaml:"buffer_cap"`
	// PreviewCap caps rendered preview length in characters.
	PreviewCap int `yaml:"preview_cap"`
	// PreviewInterval rebuilds rolling previews once per this many
	// streamed characters.
	PreviewInterval int `yaml:"preview_interval"`

	// Language forces the transcription language (e.g. "en"); empty lets
	// the service auto-detect.
	Language string `yaml:"language"`
	// SpeakTo, when set, writes synthesized audio for each completed turn
	// to this file.
	SpeakTo string `yaml:"speak_to"`

	// LogFile receives debug traces; empty disables logging.
	LogFile string `yaml:"log_file"`
}

func Default() Config {
	return Config{
		BaseURL:        "http://127.0.0.1:8000",
		RequestTimeout: 30 * time.Second,
	}
}

// Load reads path (or the default locations when path is empty) and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	if path == "" {
		path = defaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults apply.
	default:
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.BaseURL = v
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = Default().BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = Default().RequestTimeout
	}
	return cfg, nil
}

func defaultPath() string {
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, ".config", "orchat", DefaultFileName)
}
