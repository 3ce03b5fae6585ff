// Package config loads daemon configuration from a YAML file with
// environment-variable overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// Layers is the explicit allow-list of layer IDs tracked
	// individually. When set, classification heuristics are skipped
	// entirely.
	Layers []string `yaml:"layers"`

	// BasemapStyleURL points at the authoritative basemap style
	// description, fetched once at startup.
	BasemapStyleURL string `yaml:"basemap_style_url"`

	// ExcludeLayers are glob patterns forcibly grouped into Background.
	ExcludeLayers []string `yaml:"exclude_layers"`

	// ExcludeDrawnLayers toggles the built-in drawing-tool pattern set.
	ExcludeDrawnLayers bool `yaml:"exclude_drawn_layers"`

	DebounceMS            int `yaml:"debounce_ms"`
	SettleMS              int `yaml:"settle_ms"`
	BasemapFetchTimeoutMS int `yaml:"basemap_fetch_timeout_ms"`

	// PersistPath is the SQLite file holding user overrides; empty
	// disables persistence.
	PersistPath string `yaml:"persist_path"`
}

func Default() Config {
	return Config{
		HTTPAddr:              ":8082",
		LogLevel:              "info",
		ExcludeDrawnLayers:    true,
		DebounceMS:            120,
		SettleMS:              350,
		BasemapFetchTimeoutMS: 10_000,
	}
}

// Load reads path (when non-empty) over the defaults, then applies env
// overrides. A missing file with an empty path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.BasemapStyleURL = envOr("BASEMAP_STYLE_URL", cfg.BasemapStyleURL)
	cfg.PersistPath = envOr("PERSIST_PATH", cfg.PersistPath)
	cfg.DebounceMS = envOrInt("DEBOUNCE_MS", cfg.DebounceMS)
	cfg.SettleMS = envOrInt("SETTLE_MS", cfg.SettleMS)

	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = Default().DebounceMS
	}
	// The settle window must outlast the debounce delay or mutation
	// notifications escape the guard.
	if cfg.SettleMS <= cfg.DebounceMS {
		cfg.SettleMS = cfg.DebounceMS + 200
	}

	return cfg, nil
}

func (c Config) Debounce() time.Duration { return time.Duration(c.DebounceMS) * time.Millisecond }
func (c Config) Settle() time.Duration   { return time.Duration(c.SettleMS) * time.Millisecond }
func (c Config) BasemapFetchTimeout() time.Duration {
	return time.Duration(c.BasemapFetchTimeoutMS) * time.Millisecond
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envOrInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
