package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpanel/internal/models"
)

func TestParseWeights(t *testing.T) {
	t.Run("should return defaults for empty input", func(t *testing.T) {
		w, err := parseWeights("")
		require.NoError(t, err)
		assert.Equal(t, 1.0, w[models.SourceAppleMusic])
		assert.Equal(t, 0.85, w[models.SourceSpotify])
	})

	t.Run("should apply partial overrides on top of defaults", func(t *testing.T) {
		w, err := parseWeights("spotify=0.9, youtube=0.7")
		require.NoError(t, err)
		assert.Equal(t, 0.9, w[models.SourceSpotify])
		assert.Equal(t, 0.7, w[models.SourceYouTube])
		assert.Equal(t, 1.0, w[models.SourceAppleMusic])
	})

	t.Run("should accept weights for unknown sources", func(t *testing.T) {
		w, err := parseWeights("soundcloud=0.3")
		require.NoError(t, err)
		assert.Equal(t, 0.3, w[models.Source("soundcloud")])
	})

	t.Run("should reject malformed entries", func(t *testing.T) {
		_, err := parseWeights("spotify")
		assert.Error(t, err)

		_, err = parseWeights("spotify=high")
		assert.Error(t, err)
	})

	t.Run("should reject weights outside (0,1]", func(t *testing.T) {
		_, err := parseWeights("spotify=0")
		assert.Error(t, err)

		_, err = parseWeights("spotify=1.5")
		assert.Error(t, err)
	})
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "FUZZY_TITLE_THRESHOLD", "FUZZY_ARTIST_THRESHOLD", "ENABLE_MUSICBRAINZ", "SOURCE_WEIGHTS"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 92.0, cfg.Thresholds.Title)
	assert.Equal(t, 88.0, cfg.Thresholds.Artist)
	assert.True(t, cfg.EnableMusicBrainz)
}
