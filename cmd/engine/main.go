package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/alerting"
	"github.com/chevastian666/sistrau-sub000/internal/auth"
	"github.com/chevastian666/sistrau-sub000/internal/compliance"
	"github.com/chevastian666/sistrau-sub000/internal/config"
	"github.com/chevastian666/sistrau-sub000/internal/ledger"
	"github.com/chevastian666/sistrau-sub000/internal/logging"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
	"github.com/chevastian666/sistrau-sub000/internal/notify"
	"github.com/chevastian666/sistrau-sub000/internal/pipeline"
	"github.com/chevastian666/sistrau-sub000/internal/registry"
	"github.com/chevastian666/sistrau-sub000/internal/resolver"
	"github.com/chevastian666/sistrau-sub000/internal/rules"
	"github.com/chevastian666/sistrau-sub000/internal/store"
	transporthttp "github.com/chevastian666/sistrau-sub000/internal/transport/http"
)

func main() {
	log := logging.New("telemetry-engine")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	rds, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer rds.Close()

	notifier, err := notify.NewRabbitNotifier(cfg.AMQPURL, log)
	if err != nil {
		log.Error("rabbitmq connection failed", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	thresholds := compliance.Default()
	if cfg.ThresholdsPath != "" {
		thresholds, err = compliance.LoadThresholds(cfg.ThresholdsPath)
		if err != nil {
			log.Error("thresholds load failed", "path", cfg.ThresholdsPath, "error", err)
			os.Exit(1)
		}
	}
	log.Info("regulation thresholds loaded", "version", thresholds.Version)

	refdata := registry.NewCache(pg, time.Duration(cfg.RegistryRefreshSeconds)*time.Second, log)
	if err := refdata.Refresh(ctx); err != nil {
		log.Warn("initial registry refresh incomplete", "error", err)
	}
	go refdata.Run(ctx)

	res := resolver.New(refdata, refdata, log)
	engine := rules.NewEngine(rules.Limits{
		SpeedLimitKmh:        cfg.SpeedLimitKmh,
		SpeedToleranceKmh:    cfg.SpeedToleranceKmh,
		HighSpeedKmh:         cfg.HighSpeedKmh,
		RouteDeviationM:      cfg.RouteDeviationM,
		UnauthorizedSpeedKmh: cfg.UnauthorizedSpeedKmh,
	}, log)
	emitter := alerting.NewEmitter(pg, rds, notifier, log)

	archive := pipeline.NewArchiveWriter(pg,
		cfg.ArchiveChannelSize, cfg.ArchiveBatchSize, cfg.ArchiveFlushIntervalMS, log)
	go archive.Run(ctx)

	proc := pipeline.NewProcessor(res, engine, emitter, rds, refdata, archive, log)
	dispatcher := pipeline.NewDispatcher(ctx, proc, cfg.VehicleQueueSize)
	ingestor := pipeline.NewIngestor(refdata, dispatcher, log)

	led := ledger.New(thresholds, pg, log)

	authenticator := auth.NewAuthenticator(cfg, rds)
	api := http.NewServeMux()
	handlers := transporthttp.NewHandlers(ingestor, led, rds, log).WithActivitySink(pg)
	handlers.Register(api)

	// Metrics and health stay outside the API-key gate.
	root := http.NewServeMux()
	root.HandleFunc("GET /metrics", metrics.HandleMetrics)
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Handle("/", transporthttp.NewAuthMiddleware(authenticator, log).Wrap(api))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("engine listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	dispatcher.Wait()
}
