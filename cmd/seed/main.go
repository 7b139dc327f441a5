package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/seed"
	"sensorwatch/internal/state"
	"sensorwatch/internal/storage"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	reset := flag.Bool("reset", true, "delete every existing sensor first")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Init("info")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("seed")

	if cfg.Storage.Backend == "memory" {
		log.Warn().Msg("memory backend selected, seeded data is discarded on exit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	latest := state.NewNoopStore()
	if cfg.Redis.Addr != "" {
		rs, err := state.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		latest = rs
	}
	defer latest.Close()

	if *reset {
		n, err := seed.Reset(ctx, store, latest)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset")
		}
		log.Info().Int("sensors", n).Msg("existing data deleted")
	}

	sum, err := seed.Run(ctx, store, latest, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	log.Info().
		Int("sensors", sum.Sensors).
		Int("readings", sum.Readings).
		Int("alerts", sum.Alerts).
		Str("dashboard", "http://localhost"+cfg.HTTP.Addr).
		Msg("seed data created")
}
