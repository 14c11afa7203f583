package app

import (
	"context"
	"os"
	"time"

	healthsvc "shard-exchange/internal/application/health"
	holdingsvc "shard-exchange/internal/application/holdings"
	issuancesvc "shard-exchange/internal/application/issuance"
	"shard-exchange/internal/application/ledger"
	offersvc "shard-exchange/internal/application/offers"
	"shard-exchange/internal/application/sweeper"
	"shard-exchange/internal/clock"
	"shard-exchange/internal/config"
	"shard-exchange/internal/infrastructure/database"
	"shard-exchange/internal/infrastructure/events"
	"shard-exchange/internal/infrastructure/lease"
	"shard-exchange/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const sweepLeaseKey = "lease:shard:sweeper"

// App is the wired process: storage, services and the HTTP app.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Ledger   *ledger.Service
	Holdings *holdingsvc.Service
	Offers   *offersvc.Service
	Issuance *issuancesvc.Service
	Sweeper  *sweeper.Sweeper
	Fiber    *fiber.App

	producer *events.TransferProducer
}

// OpenDB opens Postgres when DATABASE_URL is set, otherwise the SQLite file, and migrates it.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
	} else {
		db, err = database.OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

// Build wires every component from cfg. Redis and Kafka are optional.
func Build(cfg *config.Config) (*App, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	health := healthsvc.Deps{DB: db}
	if cfg.RedisURL != "" {
		rdb, err := lease.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		health.Redis = rdb
	}

	clk := clock.NewSystem()
	a.Ledger = &ledger.Service{DB: db, Clock: clk}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = events.NewTransferProducer(cfg.KafkaBrokers, cfg.KafkaTransferTopic)
		a.Ledger.Publisher = a.producer
		brokers := cfg.KafkaBrokers
		health.Kafka = func(ctx context.Context) error { return events.Ping(ctx, brokers) }
	}

	a.Holdings = &holdingsvc.Service{DB: db}
	a.Offers = offersvc.NewService(db, a.Ledger, clk,
		offersvc.WithCartHoldTTL(cfg.CartHoldTTL),
		offersvc.WithAltOfferTTL(cfg.AltOfferTTL),
	)
	a.Issuance = &issuancesvc.Service{
		DB:               db,
		Ledger:           a.Ledger,
		Clock:            clk,
		PlatformHolderID: cfg.PlatformHolderID,
		FeePercent:       cfg.IssuanceFeePercent,
		SalesStartDelay:  cfg.SalesStartDelay,
	}

	a.Sweeper = &sweeper.Sweeper{Offers: a.Offers, Interval: cfg.SweepInterval}
	if a.Redis != nil {
		ttl := cfg.SweepInterval
		if ttl <= 0 {
			ttl = time.Minute
		}
		a.Sweeper.Lease = lease.NewRedis(a.Redis, sweepLeaseKey, ttl)
	}

	a.Fiber = router.New(router.Services{
		Ledger:         a.Ledger,
		Holdings:       a.Holdings,
		Offers:         a.Offers,
		Issuance:       a.Issuance,
		Health:         health,
		HealthAdminKey: cfg.HealthAdminKey,
		AdminKeyHash:   cfg.AdminKeyHash,
	})
	return a, nil
}

// Close releases the connections Build opened.
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Warn().Err(err).Msg("close kafka producer")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// ConfigureLogging sets the global zerolog level and, outside production, a console writer.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
