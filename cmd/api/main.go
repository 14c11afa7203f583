package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shard-exchange/internal/app"
	"shard-exchange/internal/config"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	app.ConfigureLogging(cfg)

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app build")
	}
	defer a.Close()

	if a.Redis != nil {
		if err := a.Redis.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("redis connected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepDone := make(chan struct{})
	go func() {
		a.Sweeper.Run(ctx)
		close(sweepDone)
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		log.Info().Msgf("health check: http://localhost:%s/health/json", cfg.Port)
		if err := a.Fiber.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := a.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	<-sweepDone
}
