package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"trendpanel/internal/api"
	"trendpanel/internal/config"
	"trendpanel/internal/database"
	"trendpanel/internal/ingest"
	"trendpanel/internal/matcher"
	"trendpanel/internal/provider"
	"trendpanel/internal/repository"
	"trendpanel/internal/scoring"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	zcfg := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

// buildProviders assembles every chart source whose credentials are
// present. A missing credential disables that source, it never fails
// startup.
func buildProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) []provider.Provider {
	var providers []provider.Provider

	if cfg.AppleTeamID != "" && cfg.AppleKeyID != "" && cfg.ApplePrivateKey != "" {
		apple, err := provider.NewAppleMusicProvider(cfg.AppleTeamID, cfg.AppleKeyID, cfg.ApplePrivateKey, logger)
		if err != nil {
			logger.Warn("apple music provider disabled", zap.Error(err))
		} else {
			providers = append(providers, apple)
		}
	} else {
		logger.Info("apple music provider disabled, credentials not set")
	}

	if cfg.SpotifyID != "" && cfg.SpotifySecret != "" {
		auth := &clientcredentials.Config{
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		client := spotify.New(auth.Client(ctx))
		providers = append(providers, provider.NewSpotifyProvider(client, logger))
	} else {
		logger.Info("spotify provider disabled, credentials not set")
	}

	if cfg.YouTubeChartPlaylist != "" {
		providers = append(providers, provider.NewYouTubeProvider(cfg.YouTubeChartPlaylist, logger))
	} else {
		logger.Info("youtube provider disabled, no chart playlist configured")
	}

	return providers
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.New(db, logger)

	var enricher matcher.Enricher
	if cfg.EnableMusicBrainz {
		enricher = matcher.NewMusicBrainzClient(logger)
	}
	resolver := matcher.NewResolver(repo, enricher, cfg.Thresholds, logger)

	ctx := context.Background()
	providers := buildProviders(ctx, cfg, logger)
	if len(providers) == 0 {
		logger.Warn("no chart providers configured, refresh will be a no-op")
	}

	runner := ingest.NewRunner(providers, resolver, repo, logger)
	engine := scoring.NewEngine(cfg.Weights)
	server := api.NewServer(repo, runner, engine, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("trend panel listening",
		zap.String("port", cfg.Port),
		zap.Int("providers", len(providers)),
		zap.String("environment", cfg.Environment))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
