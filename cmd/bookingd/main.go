package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/config"
	"github.com/example/booking-engine/internal/mq"
	"github.com/example/booking-engine/internal/persistence"
	redisstore "github.com/example/booking-engine/internal/persistence/redis"
	"github.com/example/booking-engine/internal/persistence/sqlite"
	"github.com/example/booking-engine/internal/timer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local overrides only; a missing .env is the normal case in production.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	var presenceStore persistence.PresenceStore
	switch cfg.PresenceBackend {
	case config.PresenceBackendRedis:
		store, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				logger.Error("failed to close redis", "error", cerr)
			}
		}()
		presenceStore = store
	default:
		presenceStore = sqlite.NewPresenceRepository(storage)
	}

	publisher, err := mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			logger.Error("failed to close broker connection", "error", cerr)
		}
	}()
	handlers := []application.HookHandler{&application.LogHandler{Logger: logger}, publisher}

	idGenerator := uuid.NewString
	now := time.Now

	scheduler := timer.NewScheduler(logger)
	defer scheduler.Close()

	resourceRepo := sqlite.NewResourceRepository(storage)
	scheduleRepo := sqlite.NewScheduleRepository(storage)
	bookingRepo := sqlite.NewBookingRepository(storage)
	hookRepo := sqlite.NewHookRepository(storage)

	hookService := application.NewHookService(hookRepo, handlers, logger, idGenerator, now)
	defer hookService.Wait()

	presenceService := application.NewPresenceService(presenceStore, scheduler, hookService, cfg.PresenceTTL, logger, now)
	bookingService := application.NewBookingService(bookingRepo, resourceRepo, hookService, idGenerator, now, logger)
	availabilityService := application.NewAvailabilityService(resourceRepo, scheduleRepo, bookingRepo, presenceService, logger)

	worker, err := mq.NewWorker(cfg.AMQPURL, cfg.AMQPQueue, bookingService, presenceService, availabilityService, logger)
	if err != nil {
		logger.Error("failed to start command worker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := worker.Close(); cerr != nil {
			logger.Error("failed to close command worker", "error", cerr)
		}
	}()

	logger.Info("booking engine started",
		"queue", cfg.AMQPQueue,
		"exchange", cfg.AMQPExchange,
		"presence_backend", cfg.PresenceBackend,
		"presence_ttl", cfg.PresenceTTL)

	if err := worker.Run(ctx); err != nil {
		logger.Error("command worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("booking engine shutting down")
}
