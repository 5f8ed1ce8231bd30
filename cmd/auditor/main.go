// The auditor consumes the attendance event feed and writes a
// structured audit log: the hook downstream reporting builds on.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mesbahamin/timebook/internal/config"
	"github.com/mesbahamin/timebook/internal/queue"
	"github.com/mesbahamin/timebook/internal/store"
)

func main() {
	cfg := config.Load()
	if cfg.Env != "production" && cfg.Env != "prod" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	feed := queue.NewRedisFeed(redisClient.Client, queue.DefaultKey)

	events, err := feed.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("feed consume init failed")
	}

	log.Info().Msg("auditor started, waiting for events")
	for evt := range events {
		log.Info().
			Str("type", string(evt.Type)).
			Str("user_id", evt.UserID).
			Str("role", string(evt.Role)).
			Str("entry", evt.EntryUUID).
			Time("at", evt.At).
			Msg("attendance event")
	}

	log.Info().Msg("auditor stopped")
}
