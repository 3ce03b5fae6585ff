package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8082" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.ExcludeDrawnLayers {
		t.Fatalf("drawn-layer exclusion should default on")
	}
	if cfg.Debounce() != 120*time.Millisecond || cfg.Settle() != 350*time.Millisecond {
		t.Fatalf("unexpected timing defaults: debounce=%v settle=%v", cfg.Debounce(), cfg.Settle())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
http_addr: ":9090"
layers: [user-fill-1, user-line-2]
basemap_style_url: "https://tiles.openfreemap.org/styles/liberty"
exclude_layers: ["measure-*"]
debounce_ms: 50
persist_path: /tmp/layers.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if len(cfg.Layers) != 2 || cfg.Layers[0] != "user-fill-1" {
		t.Fatalf("Layers = %v", cfg.Layers)
	}
	if len(cfg.ExcludeLayers) != 1 || cfg.ExcludeLayers[0] != "measure-*" {
		t.Fatalf("ExcludeLayers = %v", cfg.ExcludeLayers)
	}
	if cfg.PersistPath != "/tmp/layers.db" {
		t.Fatalf("PersistPath = %q", cfg.PersistPath)
	}
	// Unset keys keep their defaults.
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit path")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("DEBOUNCE_MS", "80")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DebounceMS != 80 {
		t.Fatalf("DebounceMS = %d", cfg.DebounceMS)
	}
}

func TestSettleForcedPastDebounce(t *testing.T) {
	t.Setenv("DEBOUNCE_MS", "400")
	t.Setenv("SETTLE_MS", "100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SettleMS <= cfg.DebounceMS {
		t.Fatalf("settle %dms must exceed debounce %dms", cfg.SettleMS, cfg.DebounceMS)
	}
}

func TestBadEnvIntIgnored(t *testing.T) {
	t.Setenv("DEBOUNCE_MS", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DebounceMS != 120 {
		t.Fatalf("DebounceMS = %d, want default", cfg.DebounceMS)
	}
}
