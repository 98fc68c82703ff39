package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/config"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/httpserver"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/logging"
	sig "github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)

	ctx := context.Background()

	// Relay backend: redis when configured, then supabase, then in-process.
	var relay sig.Relay
	switch {
	case cfg.RedisURL != "":
		r, err := sig.NewRedisRelay(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis relay init failed")
		}
		relay = r
		log.Info().Msg("signaling relay: redis")
	case cfg.SupabaseURL != "" && cfg.SupabaseKey != "":
		r, err := sig.NewSupabaseRelay(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			log.Fatal().Err(err).Msg("supabase relay init failed")
		}
		relay = r
		log.Info().Msg("signaling relay: supabase")
	default:
		relay = sig.NewMemoryRelay()
		log.Warn().Msg("signaling relay: in-memory, single instance only")
	}

	var minter httpserver.TokenMinter
	if cfg.ElevenLabsKey != "" {
		minter = transcript.NewElevenLabsClient(cfg.ElevenLabsKey)
	}

	srv := httpserver.New(relay, minter, log)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddress).Msg("server listening")
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	case s := <-sigChan:
		log.Info().Str("signal", s.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
