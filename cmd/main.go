package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vanna/internal/adapters/angelone"
	"vanna/internal/adapters/config"
	"vanna/internal/adapters/errors/noop"
	"vanna/internal/adapters/errors/sentry"
	"vanna/internal/adapters/redis"
	"vanna/internal/domain/chain"
	"vanna/internal/metrics"
	"vanna/internal/server"
	"vanna/internal/session"
	"vanna/internal/stream"
	"vanna/internal/workers"
	"vanna/pkg/errors"
	"vanna/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	// Tick and session stores. Redis is the primary backend; when it is
	// unreachable at boot the service degrades to in-process stores so the
	// REST pull path keeps working.
	tickStore, sessionStore := initStores(cfg, log)

	broker := angelone.NewClient(cfg.Broker, cfg.Chain.Underlyings)
	if cfg.Feed.AuthToken != "" {
		broker.SetAuthToken(cfg.Feed.AuthToken)
	}

	catalog := chain.NewCatalog(broker)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := catalog.Load(loadCtx); err != nil {
		loadCancel()
		log.Fatalf("Failed to load instrument catalog: %v", err)
	}
	loadCancel()
	log.Infow("Instrument catalog loaded", "underlyings", catalog.Underlyings(), "tokens", len(catalog.Tokens()))

	assembler := chain.NewAssembler(catalog, tickStore, broker, chain.NewStaticProvider(), cfg.Chain.SpotTokens)

	hub := server.NewHub()
	feeder := stream.NewFeeder(assembler, hub, cfg.Chain.SnapshotInterval, cfg.Chain.ErrorBackoff, cfg.Chain.AssembleTimeout)
	hub.SetOnLastUnsubscribe(feeder.Release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeder.Start(ctx)

	var feed *angelone.Feed
	if cfg.Feed.Enabled && cfg.Feed.FeedToken != "" {
		feed = angelone.NewFeed(cfg.Feed, tickStore)
		if err := feed.SetTokens(catalog.Tokens()); err != nil {
			log.Warnf("Initial feed subscription setup failed: %v", err)
		}
		feed.Start(ctx)
		log.Info("Market data feed started")
	} else {
		log.Warn("Market data feed disabled, falling back to REST quotes")
	}

	// A typed nil *Feed must not leak into the interface value.
	var tokenSub workers.TokenSubscriber
	if feed != nil {
		tokenSub = feed
	}

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewCatalogReloadWorker(catalog, tokenSub, cfg.Workers.CatalogReloadInterval))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker scheduler: %v", err)
	}

	srv := server.NewServer(
		cfg.Server,
		version,
		cfg.Chain.AssembleTimeout,
		hub,
		feeder,
		assembler,
		tickStore,
		sessionStore,
		broker,
	)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(cancel, srv, scheduler, feeder, feed, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initStores connects to Redis and builds the tick and session stores,
// degrading to in-process stores when Redis is unavailable.
func initStores(cfg *config.Config, log *logger.Logger) (chain.TickStore, session.Store) {
	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warnf("Redis unavailable, using in-process stores: %v", err)
		return chain.NewMemoryTickStore(cfg.Chain.TickTTL), session.NewMemoryStore(cfg.Chain.SessionTTL)
	}

	log.Infow("Redis connected", "addr", cfg.Redis.Addr())
	return redis.NewTickStore(client, cfg.Chain.TickTTL), redis.NewSessionStore(client, cfg.Chain.SessionTTL)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then tears components down
// in reverse start order.
func waitForShutdown(
	cancel context.CancelFunc,
	srv *server.Server,
	scheduler *workers.Scheduler,
	feeder *stream.Feeder,
	feed *angelone.Feed,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Infow("Shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker scheduler stop error: %v", err)
	}

	if feed != nil {
		feed.Stop()
	}

	feeder.Stop()
	cancel()

	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Error tracker flush failed: %v", err)
	}
	log.Info("Shutdown complete")
}
