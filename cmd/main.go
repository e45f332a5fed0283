package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/repositories"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	sources := map[models.Platform]services.SourceCatalog{}
	dests := map[models.Platform]services.Destination{}

	var spotifyService *services.SpotifyService
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify); err == nil {
			spotifyService = svc
			sources[models.PlatformSpotify] = svc
			dests[models.PlatformSpotify] = svc
		} else {
			logger.Warn("spotify service unavailable", "error", err)
		}
	}

	youtubeService := services.NewYouTubeService(config.Credentials.YouTube.ProxyURL)
	if config.Credentials.YouTube.AuthFile != "" {
		if err := youtubeService.Authenticate(context.Background(), map[string]string{
			"auth_file": config.Credentials.YouTube.AuthFile,
		}); err != nil {
			logger.Warn("youtube authentication not configured", "error", err)
		}
	}
	sources[models.PlatformYouTubeMusic] = youtubeService
	dests[models.PlatformYouTubeMusic] = youtubeService

	var oracle services.Disambiguator
	if config.Credentials.OpenAI.APIKey != "" {
		if svc, err := services.NewOpenAIService(config.Credentials.OpenAI, config.Transfer.AITimeout()); err == nil {
			oracle = svc
		} else {
			logger.Warn("disambiguation service unavailable", "error", err)
		}
	}

	// Quota state lives in sqlite; fall back to process memory when the
	// store cannot be opened.
	var limiter tasks.RateLimiter
	var quota quotaReader
	if db, err := shared.NewDatabase(config.RateLimit.StorePath); err == nil {
		if err := shared.RunMigrations(db); err == nil {
			store := repositories.NewQuotaStore(db, config.RateLimit)
			limiter, quota = store, store
		} else {
			logger.Warn("quota store migrations failed, using in-memory limiter", "error", err)
		}
	} else {
		logger.Warn("quota store unavailable, using in-memory limiter", "error", err)
	}
	if limiter == nil {
		mem := repositories.NewMemoryLimiter(config.RateLimit)
		limiter, quota = mem, mem
	}

	engine := tasks.NewTransferEngine(tasks.EngineOpts{
		Sources: sources,
		Dests:   dests,
		Oracle:  oracle,
		Limiter: limiter,
		Logger:  logger,
		Config:  config.Transfer,
	})

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Engine:  engine,
		Quota:   quota,
		Spotify: spotifyService,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "plx",
		Usage:    "Transfer playlists between Spotify & YouTube Music",
		Version:  "0.2.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		var terr *tasks.TransferError
		if errors.As(err, &terr) && errors.Is(err, shared.ErrRateLimited) {
			logger.Fatalf("transfer quota exhausted, retry in %s", terr.RetryAfter.Round(time.Second))
		}
		logger.Fatalf("application error: %v", err)
	}
}
