package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/playlist-hub/playlist-hub/internal/api/http"
	"github.com/playlist-hub/playlist-hub/internal/application/engine"
	"github.com/playlist-hub/playlist-hub/internal/config"
	"github.com/playlist-hub/playlist-hub/internal/infrastructure/discord"
	"github.com/playlist-hub/playlist-hub/internal/infrastructure/postgres"
	"github.com/playlist-hub/playlist-hub/internal/infrastructure/spotify"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// infrastructure
	store := postgres.NewWorkflowRepository(pool)
	spotifyClient := spotify.NewClient(spotify.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RefreshToken: cfg.SpotifyRefreshToken,
	}, logger)
	discordClient := discord.NewClient(cfg.DiscordBotToken, logger)

	// engine
	eng := engine.New(
		store,
		spotify.NewMatcher(spotifyClient),
		discord.NewDispatcher(discordClient, cfg.DiscordAdminID),
		spotify.NewBuilder(spotifyClient),
		cfg.ExternalCallTimeout,
		logger,
	)

	loaded, err := eng.Rehydrate(ctx)
	if err != nil {
		log.Fatalf("rehydrate error: %v", err)
	}
	logger.Info().Int("workflows", loaded).Msg("cache rehydrated")

	// background sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go eng.RunSweeper(sweepCtx, cfg.SweepInterval, cfg.WorkflowTTL)

	// ops server
	apiServer := httpapi.NewServer(eng, logger)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
