package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/civic-data-tour/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/civic-data-tour/internal/adapter/kafka"
	"github.com/couchcryptid/civic-data-tour/internal/adapter/live"
	"github.com/couchcryptid/civic-data-tour/internal/adapter/mapbox"
	"github.com/couchcryptid/civic-data-tour/internal/config"
	"github.com/couchcryptid/civic-data-tour/internal/dataset"
	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/explore"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/observability"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

const watchDebounce = 500 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	scenes := tour.DefaultScenes()
	if cfg.ScenesFile != "" {
		scenes, err = tour.LoadScenes(cfg.ScenesFile)
		if err != nil {
			logger.Error("failed to load scenes", "file", cfg.ScenesFile, "error", err)
			os.Exit(1)
		}
		logger.Info("scenes loaded", "file", cfg.ScenesFile, "count", len(scenes))
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	hub := highlight.NewHub(logger)
	liveHub := live.NewHub(logger, metrics, cfg.AllowedOrigins)
	hub.Attach(highlight.MetricsView(metrics))
	hub.Attach(liveHub)

	var (
		publisher *kafkaadapter.Publisher
		events    tour.EventSink
	)
	if cfg.EventsEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		events = publisher
		hub.Attach(publisher)
		logger.Info("activity events enabled", "topic", cfg.KafkaEventsTopic)
	}

	// Speech runs in the browser; the live hub carries utterances and results.
	var (
		speaker tour.Speaker = narration.Unsupported{}
		remote  *narration.Remote
	)
	if cfg.NarrationEnabled {
		remote = narration.NewRemote(liveHub, clock, cfg.NarrationTimeout, logger)
		liveHub.SetSpeech(remote)
		speaker = remote
	}

	guided := tour.New(tour.Options{
		Scenes:           scenes,
		Broadcaster:      hub,
		Speaker:          speaker,
		Display:          liveHub,
		Events:           events,
		Clock:            clock,
		Logger:           logger,
		Metrics:          metrics,
		NarrationEnabled: cfg.NarrationEnabled,
	})
	hub.OnExternal(guided.Interrupt)
	if remote != nil {
		remote.OnVoiceChange(guided.VoiceChanged)
	}

	store := dataset.NewStore()
	loader := dataset.NewLoader(cfg.DataDir, store, logger, metrics)
	loader.OnReadyChange(guided.SetDataReady)

	explorer := explore.NewService(store, hub, geocoder, logger, metrics)

	var voices httpadapter.VoiceCatalog
	if remote != nil {
		voices = remote
	}
	api := httpadapter.NewAPI(guided, voices, hub, explorer, logger)
	liveHub.SetSnapshot(func() any { return api.State() })

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, api, liveHub, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load datasets, then watch for refreshed files.
	go func() {
		if err := loader.Run(ctx); err != nil {
			logger.Error("dataset loader error", "error", err)
			return
		}
		if !cfg.DataWatch || ctx.Err() != nil {
			return
		}
		watcher, err := dataset.NewWatcher(loader, clock, watchDebounce, logger)
		if err != nil {
			logger.Warn("dataset watching disabled", "error", err)
			return
		}
		logger.Info("watching datasets", "dir", cfg.DataDir)
		if err := watcher.Run(ctx); err != nil {
			logger.Error("dataset watcher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	guided.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	liveHub.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
