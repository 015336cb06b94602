package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"autoservice/internal/api"
	"autoservice/internal/clock"
	"autoservice/internal/config"
	"autoservice/internal/database"
	"autoservice/internal/domain"
	"autoservice/internal/events"
	"autoservice/internal/logging"
	"autoservice/internal/metrics"
	"autoservice/internal/repository"
	"autoservice/internal/service"
	"autoservice/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	clk := clock.NewSystem()
	var wg sync.WaitGroup

	holds, err := initHoldStore(ctx, cfg, db, redisClient, clk, &wg, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	subscribeAudit(bus, logging.Component(logger, "audit"))
	hub := events.NewHub()
	outbox := events.NewOutbox(cfg.Fanout.Buffer, bus, hub, logging.Component(logger, "outbox"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		outbox.Run(ctx)
	}()

	dispatcher, senderCloser, err := initNotifications(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	if senderCloser != nil {
		defer (func() { _ = senderCloser.Close() })()
	}
	dispatcher.Start(ctx)

	holdService := service.NewHoldService(holds, db, db, outbox,
		service.DatePolicy{Clock: clk, MaxAdvanceDays: cfg.Booking.MaxAdvanceDays},
		cfg.Holds.TTL, logging.Component(logger, "holds"))
	availability := service.NewAvailabilityService(db, holds, db, clk, logging.Component(logger, "availability"))
	bookings := service.NewBookingService(db, holds, db, outbox, dispatcher, clk, service.BookingOptions{
		AutoConfirm:     cfg.Booking.AutoConfirm,
		MaxAdvanceDays:  cfg.Booking.MaxAdvanceDays,
		CheckInLeadDays: cfg.Booking.CheckInLeadDays,
	}, logging.Component(logger, "bookings"))
	parts := service.NewPartService(db, db, db, outbox, dispatcher, clk, logging.Component(logger, "parts"))

	if cfg.AMQP.Enabled {
		consumer := worker.NewPaymentConsumer(cfg.AMQP.URL, cfg.AMQP.PaymentsQueue, bookings, logging.Component(logger, "payments"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("payment consumer stopped")
			}
		}()
	}

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Holds:        holdService,
		Availability: availability,
		Bookings:     bookings,
		Parts:        parts,
	}, hub, logging.Component(logger, "http"))

	err = serve(ctx, httpServer, cfg, logger)

	stop()
	wg.Wait()
	dispatcher.Wait()
	logger.Info().
		Int64("notifications_delivered", dispatcher.Delivered()).
		Int64("notifications_failed", dispatcher.Failed()).
		Int64("events_dropped", outbox.Dropped()).
		Msg("autoservice stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "main"), closer, nil
}

func loadCatalog(logger *zerolog.Logger) (*database.Catalog, error) {
	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = "configs/seed.yaml"
	}
	data, err := os.ReadFile(seedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("seed_path", seedPath).Msg("seed file not found, using stored catalog")
			return nil, nil
		}
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("read seed")
		return nil, err
	}

	var catalog database.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("parse seed")
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("catalog validation failed")
		return nil, err
	}
	return &catalog, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDBWithTimeout(cfg.Database.Path, cfg.Database.BusyTimeoutMS, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	catalog, err := loadCatalog(logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if catalog != nil {
		if err := db.SyncCatalog(ctx, catalog); err != nil {
			db.Close()
			return nil, fmt.Errorf("sync catalog: %w", err)
		}
		logger.Info().
			Int("technicians", len(catalog.Technicians)).
			Int("time_slots", len(catalog.TimeSlots)).
			Int("parts", len(catalog.Parts)).
			Msg("catalog synced")
		return db, nil
	}

	if err := db.LoadCatalog(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, holds start on the fallback store")
		return client
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initHoldStore builds the configured primary store behind a failover to the
// configured fallback.
func initHoldStore(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	clk clock.Clock,
	wg *sync.WaitGroup,
	logger *zerolog.Logger,
) (domain.HoldStore, error) {
	build := func(backend string) (domain.HoldStore, error) {
		switch backend {
		case config.HoldBackendRedis:
			if redisClient == nil {
				return nil, errors.New("redis hold store requires redis.address")
			}
			return repository.NewRedisHoldStore(redisClient, cfg.Holds.KeyPrefix, clk), nil
		case config.HoldBackendDurable:
			return repository.NewDurableHoldStore(db, clk), nil
		default:
			mem := repository.NewMemoryHoldStore(clk)
			wg.Add(1)
			go func() {
				defer wg.Done()
				mem.RunSweeper(ctx, cfg.Holds.SweepInterval, logging.Component(logger, "hold-sweeper"))
			}()
			return mem, nil
		}
	}

	primary, err := build(cfg.Holds.Backend)
	if err != nil {
		return nil, err
	}
	if cfg.Holds.Backend == cfg.Holds.Fallback {
		return primary, nil
	}
	fallback, err := build(cfg.Holds.Fallback)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("backend", cfg.Holds.Backend).Str("fallback", cfg.Holds.Fallback).Msg("hold store ready")
	return repository.NewFailoverHoldStore(primary, fallback, logging.Component(logger, "holds-failover")), nil
}

func initNotifications(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (*worker.NotificationDispatcher, io.Closer, error) {
	var (
		sender worker.Sender
		closer io.Closer
	)
	if cfg.AMQP.Enabled {
		amqpSender, err := worker.NewAMQPSender(cfg.AMQP.URL, cfg.AMQP.NotificationsQueue, logging.Component(logger, "amqp"))
		if err != nil {
			return nil, nil, fmt.Errorf("init amqp sender: %w", err)
		}
		sender, closer = amqpSender, amqpSender
	} else {
		sender = worker.NewLogSender(logging.Component(logger, "notify"))
	}

	retry := worker.RetryPolicy{
		MaxRetries:    cfg.Notifications.MaxRetries,
		InitialDelay:  cfg.Notifications.InitialDelay,
		MaxDelay:      cfg.Notifications.MaxDelay,
		BackoffFactor: 2,
	}
	dispatcher := worker.NewNotificationDispatcher(sender, retry, cfg.Notifications.Workers, logging.Component(logger, "notifications"))
	if redisClient != nil {
		dispatcher.WithDeadLetter(redisClient, "")
	}
	return dispatcher, closer, nil
}

// subscribeAudit records every domain event in the structured log.
func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	audit := func(event *events.Event) error {
		logger.Info().
			Str("event_id", event.ID).
			Str("type", event.Type).
			Strs("groups", event.Groups).
			RawJSON("payload", event.Payload).
			Msg("domain event")
		return nil
	}
	for _, eventType := range []string{
		events.EventSlotHeld,
		events.EventSlotReleased,
		events.EventBookingUpdated,
		events.EventChecklistUpdated,
		events.EventPartsUpdated,
	} {
		bus.Subscribe(eventType, audit)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("holds", cfg.Holds.Backend).Msg("autoservice started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
