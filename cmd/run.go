package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/adapters/http/api"
	"github.com/okian/scoreboard/internal/adapters/http/swagger"
	"github.com/okian/scoreboard/internal/adapters/mq/kafka"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	defaultMetricsRefresh = 10 * time.Second
)

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	return serve(ctx, cfg, logger.Get())
}

// serve runs the service, the HTTP server and the optional Kafka consumer
// until ctx is canceled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	metrics.SetGlobal(newMetrics(cfg.Metrics))

	store, err := service.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(ctx, kafkaConfig(cfg.Kafka), kafka.NewScoreProcessor(svc),
			kafka.WithLogger(log.Named("kafka")))
		if err != nil {
			return fmt.Errorf("create kafka consumer: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		refreshSystemMetrics(gctx, metricsInterval())
		return nil
	})

	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

func newService(cfg *config.Config, store service.Store, log logger.Logger) *service.Service {
	return service.New(
		service.WithStore(store),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithStoreTimeout(cfg.StoreTimeout()),
		service.WithLockStripes(cfg.LockStripes),
		service.WithMaxCapacity(cfg.MaxLeaderboardSize),
		service.WithSeedOnCreate(cfg.SeedOnCreate),
		service.WithLogger(log.Named("service")),
	)
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithDefaultLeaderboardSize(cfg.DefaultLeaderboardSize),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)
	return mux
}

func kafkaConfig(k config.KafkaConfig) kafka.Config {
	return kafka.Config{
		BootstrapServers: k.BootstrapServers,
		Topic:            k.Topic,
		GroupID:          k.GroupID,
		DLQTopic:         k.DLQTopic,
		AutoOffsetReset:  k.AutoOffsetReset,
		MaxConcurrency:   k.MaxConcurrency,
	}
}

// newMetrics builds the metrics manager from config on a fresh registry, so
// the collectors exposed on /metrics carry the configured names.
func newMetrics(m config.MetricsConfig) *metrics.Manager {
	return metrics.NewManager(
		metrics.WithPrometheusRegistry(prometheus.NewRegistry()),
		metrics.WithMetricsEnabled(m.Enabled),
		metrics.WithNamespace(m.Namespace),
		metrics.WithSubsystem(m.Subsystem),
		metrics.WithRefreshInterval(m.RefreshInterval()),
		metrics.WithHistogramBuckets(m.LatencyBucketsMS),
		metrics.WithCustomLabels(m.ConstLabels),
	)
}

func metricsInterval() time.Duration {
	if m := metrics.Global(); m != nil && m.RefreshInterval() > 0 {
		return m.RefreshInterval()
	}
	return defaultMetricsRefresh
}

// refreshSystemMetrics samples runtime metrics until ctx is done.
func refreshSystemMetrics(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	metrics.UpdateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateSystemMetrics()
		}
	}
}
