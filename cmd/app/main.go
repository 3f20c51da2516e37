package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/roombooking/config"
	"github.com/Domenick1991/roombooking/internal/bootstrap"
	"github.com/Domenick1991/roombooking/internal/cache"
	"github.com/Domenick1991/roombooking/internal/kafka"
	"github.com/Domenick1991/roombooking/internal/logger"
	"github.com/Domenick1991/roombooking/internal/repository"
	"github.com/Domenick1991/roombooking/internal/seed"
	"github.com/Domenick1991/roombooking/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
)

const publishAttempts = 3

func main() {
	cfgPath, err := config.PathFromArgs(os.Args[0], os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.New(logger.Config{}).Fatal("load config", "error", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "roombooking"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bookingRepo repository.BookingRepository
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		repo, err := repository.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatal("open sqlite", "path", cfg.Storage.SQLitePath, "error", err)
		}
		defer repo.Close()
		bookingRepo = repo
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal("connect postgres", "error", err)
		}
		defer pool.Close()

		repo := repository.NewBookingRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal("migrate postgres", "error", err)
		}
		bookingRepo = repo
	}

	opts := []booking.BookingServiceOption{
		booking.WithKeyGenerator(booking.NewKeyGenerator(nil, cfg.Booking.KeyBytes)),
	}

	if cfg.Redis.Enabled() {
		redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.ListCacheTTL())
		defer redisCache.Close()
		opts = append(opts, booking.WithCache(redisCache, cfg.Booking.RoomLockTTL()))
	} else {
		log.Info("redis not configured, room locks and listing cache disabled")
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log.Logger)
		defer producer.Close()

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := producer.CheckConnection(checkCtx); err != nil {
			log.Warn("kafka not reachable at startup", "error", err)
		}
		cancel()

		opts = append(opts, booking.WithProducer(producer.WithRetries(publishAttempts), cfg.Kafka.BookingEventsTopic, cfg.Kafka.NotificationsTopic))
	}

	bookingService := booking.NewBookingService(bookingRepo, log.Logger, opts...)

	if cfg.Seed.Enabled {
		if err := seed.Run(ctx, bookingRepo, bookingService, time.Now(), log.Logger); err != nil {
			log.Fatal("seed bookings", "error", err)
		}
	}

	if err := bootstrap.Run(ctx, cfg, bookingService, log.Logger); err != nil {
		log.Fatal("server error", "error", err)
	}
}
