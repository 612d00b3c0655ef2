package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/fraudhawk/internal/cache"
	"github.com/telhawk-systems/fraudhawk/internal/config"
	"github.com/telhawk-systems/fraudhawk/internal/consumer"
	"github.com/telhawk-systems/fraudhawk/internal/dlq"
	"github.com/telhawk-systems/fraudhawk/internal/handlers"
	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/notification"
	"github.com/telhawk-systems/fraudhawk/internal/repository"
	"github.com/telhawk-systems/fraudhawk/internal/scoring"
	"github.com/telhawk-systems/fraudhawk/internal/server"
	"github.com/telhawk-systems/fraudhawk/internal/service"
	"github.com/telhawk-systems/fraudhawk/internal/severity"
	"github.com/telhawk-systems/fraudhawk/internal/stream"
	"github.com/telhawk-systems/fraudhawk/pkg/retry"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("detector"))
	logging.SetDefault(logger)

	logger.Info("starting fraud detector",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
	)

	connString := cfg.Database.Postgres.DSN()

	// Run database migrations
	logger.Info("running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Startup dependencies get a bounded retry window; exhaustion is fatal.
	startupPolicy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}

	// Storage is mandatory: the commit point of the pipeline.
	var repo *repository.PostgresRepository
	err = retry.Do(context.Background(), startupPolicy, func() error {
		var connErr error
		repo, connErr = repository.NewPostgresRepository(context.Background(), connString)
		return connErr
	})
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	// The broker is mandatory: no stream, no events.
	var natsClient *stream.Client
	err = retry.Do(context.Background(), startupPolicy, func() error {
		var connErr error
		natsClient, connErr = stream.NewClient(cfg.NATS, logger)
		return connErr
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	deadLetter, err := dlq.NewQueue(startupCtx, natsClient, logger)
	if err != nil {
		startupCancel()
		log.Fatalf("Failed to initialize DLQ: %v", err)
	}

	// The model is optional: a missing or corrupt artifact degrades scoring
	// to rules only instead of keeping the service down.
	var calibration *scoring.Calibration
	if cal, err := scoring.LoadArtifact(cfg.Model.Path); err != nil {
		logger.Warn("model artifact unavailable, running rule-only",
			"path", cfg.Model.Path, logging.Error(err))
	} else {
		calibration = cal
		logger.Info("model artifact loaded", "path", cfg.Model.Path)
	}
	engine := scoring.NewEngine(calibration, cfg.Scoring, logger)

	// Cache invalidation is optional as well; stale dashboards beat a
	// stalled pipeline.
	var invalidator *cache.Invalidator
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Warn("invalid redis url, cache invalidation disabled", logging.Error(err))
		} else {
			invalidator = cache.NewInvalidator(redis.NewClient(opts), cfg.Redis.Pattern, logger)
		}
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	dispatcher := notification.NewDispatcher(
		buildChannels(cfg.Notification, logger),
		policy,
		cfg.Severity,
		severity.Parse(cfg.Notification.MinSeverity),
		logger,
	)
	logger.Info("notification channels configured", "channels", dispatcher.Channels(),
		"min_severity", severity.Parse(cfg.Notification.MinSeverity).String())

	processor := service.NewProcessor(repo, engine, invalidator, dispatcher, deadLetter, policy, logger)

	cons, err := consumer.NewJetStream(startupCtx, natsClient, processor, cfg.Consumer, logger)
	startupCancel()
	if err != nil {
		log.Fatalf("Failed to initialize consumer: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := cons.Run(runCtx); err != nil {
			logger.Error("consumer stopped with error", logging.Error(err))
		}
	}()

	healthHandler := handlers.NewHealthHandler(
		repo,
		natsClient.IsConnected,
		func() string { return cons.State().String() },
		deadLetter.Stats,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(healthHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop consuming first, let in-flight work land,
	// then close the outer surfaces and finally the store.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	runCancel()

	select {
	case <-consumerDone:
	case <-time.After(30 * time.Second):
		logger.Warn("consumer did not stop in time")
	}

	processor.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Error(err))
	}

	if err := natsClient.Drain(); err != nil {
		logger.Warn("nats drain failed", logging.Error(err))
	}

	logger.Info("detector stopped")
}

// buildChannels assembles the notification channels that have a destination
// configured.
func buildChannels(cfg config.NotificationConfig, logger *logging.Logger) []notification.Channel {
	var channels []notification.Channel

	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notification.NewSlackChannel(cfg.SlackWebhookURL, cfg.Timeout))
	}
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, notification.NewDiscordChannel(cfg.DiscordWebhookURL, cfg.Timeout))
	}
	if cfg.TeamsWebhookURL != "" {
		channels = append(channels, notification.NewTeamsChannel(cfg.TeamsWebhookURL, cfg.Timeout))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookChannel(cfg.WebhookURL, cfg.Timeout))
	}
	if cfg.Email.Host != "" && len(cfg.Email.To) > 0 {
		channels = append(channels, notification.NewEmailChannel(
			cfg.Email.Host, cfg.Email.Port,
			cfg.Email.Username, cfg.Email.Password,
			cfg.Email.From, cfg.Email.To,
		))
	}
	if cfg.LogAlerts {
		channels = append(channels, notification.NewLogChannel(func(format string, v ...interface{}) {
			logger.Info(fmt.Sprintf(format, v...))
		}))
	}

	return channels
}
