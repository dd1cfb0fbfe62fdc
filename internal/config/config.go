// Package config loads application settings from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"trendpanel/internal/matcher"
	"trendpanel/internal/models"
	"trendpanel/internal/scoring"
)

type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string
	Environment  string

	DefaultRegion string
	DefaultGenre  string

	// Provider credentials. A missing credential disables that provider
	// instead of failing startup.
	SpotifyID            string
	SpotifySecret        string
	AppleTeamID          string
	AppleKeyID           string
	ApplePrivateKey      string
	YouTubeChartPlaylist string

	EnableMusicBrainz bool
	EnableBuyLinks    bool
	EnableVelocity    bool

	// Fuzzy-match acceptance gates, 0-100.
	Thresholds matcher.Thresholds

	// Per-source weight overrides, e.g. "spotify=0.9,youtube=0.7".
	Weights scoring.Weights

	// When set, POST /api/refresh requires a valid TOTP code in the
	// X-Admin-Code header.
	AdminTOTPSecret string
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                 envOr("PORT", "8080"),
		DatabasePath:         envOr("DATABASE_PATH", "./data/trendpanel.db"),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		Environment:          envOr("ENVIRONMENT", "development"),
		DefaultRegion:        envOr("DEFAULT_REGION", "DE"),
		DefaultGenre:         os.Getenv("DEFAULT_GENRE"),
		SpotifyID:            os.Getenv("SPOTIFY_ID"),
		SpotifySecret:        os.Getenv("SPOTIFY_SECRET"),
		AppleTeamID:          os.Getenv("APPLE_TEAM_ID"),
		AppleKeyID:           os.Getenv("APPLE_KEY_ID"),
		ApplePrivateKey:      os.Getenv("APPLE_PRIVATE_KEY"),
		YouTubeChartPlaylist: os.Getenv("YOUTUBE_CHART_PLAYLIST"),
		EnableMusicBrainz:    envBool("ENABLE_MUSICBRAINZ", true),
		EnableBuyLinks:       envBool("ENABLE_BUY_LINKS", true),
		EnableVelocity:       envBool("ENABLE_TREND_VELOCITY", false),
		AdminTOTPSecret:      os.Getenv("ADMIN_TOTP_SECRET"),
	}

	var err error
	cfg.Thresholds = matcher.DefaultThresholds()
	if cfg.Thresholds.Title, err = envFloat("FUZZY_TITLE_THRESHOLD", cfg.Thresholds.Title); err != nil {
		return cfg, err
	}
	if cfg.Thresholds.Artist, err = envFloat("FUZZY_ARTIST_THRESHOLD", cfg.Thresholds.Artist); err != nil {
		return cfg, err
	}

	cfg.Weights, err = parseWeights(os.Getenv("SOURCE_WEIGHTS"))
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// parseWeights applies "source=weight" overrides on top of the default
// table, so a partial override keeps the remaining defaults.
func parseWeights(raw string) (scoring.Weights, error) {
	weights := scoring.DefaultWeights()
	if raw == "" {
		return weights, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid SOURCE_WEIGHTS entry %q", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SOURCE_WEIGHTS value %q: %w", pair, err)
		}
		if w <= 0 || w > 1 {
			return nil, fmt.Errorf("SOURCE_WEIGHTS value for %q must be in (0,1]", name)
		}
		weights[models.Source(strings.TrimSpace(name))] = w
	}
	return weights, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
