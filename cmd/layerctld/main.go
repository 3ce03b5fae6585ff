package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opengeos/maplibre-gl-layer-control/internal/basemap"
	"github.com/opengeos/maplibre-gl-layer-control/internal/config"
	"github.com/opengeos/maplibre-gl-layer-control/internal/engine"
	"github.com/opengeos/maplibre-gl-layer-control/internal/httpapi"
	"github.com/opengeos/maplibre-gl-layer-control/internal/maphost"
	"github.com/opengeos/maplibre-gl-layer-control/internal/metrics"
	"github.com/opengeos/maplibre-gl-layer-control/internal/persist"
	"github.com/opengeos/maplibre-gl-layer-control/internal/registry"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	logger := httpapi.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var store *persist.Store
	if cfg.PersistPath != "" {
		s, err := persist.Open(cfg.PersistPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PersistPath).Msg("failed to open persistence store")
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	opts := engine.Options{
		Debounce:           cfg.Debounce(),
		Settle:             cfg.Settle(),
		ExplicitTargets:    cfg.Layers,
		ExclusionPatterns:  cfg.ExcludeLayers,
		ExcludeDrawnLayers: cfg.ExcludeDrawnLayers,
		Persist:            store,
	}
	if cfg.BasemapStyleURL != "" {
		info, err := basemap.Fetch(ctx, cfg.BasemapStyleURL, cfg.BasemapFetchTimeout())
		if err != nil {
			// Heuristic classification carries the session from here.
			logger.Warn().Err(err).Str("url", cfg.BasemapStyleURL).Msg("basemap style fetch failed")
		} else {
			opts.Basemap = &info
		}
	}

	host := maphost.NewMemory()
	reg := registry.New(logger, m)
	eng := engine.New(logger, host, reg, m, opts)
	if err := eng.Attach(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to attach layer engine")
	}
	defer eng.Close()

	h := httpapi.NewHandler(logger, eng, m)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("layerctld listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
