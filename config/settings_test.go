package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s := LoadSettings("")

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "civicsync", s.MongoDatabase)
	assert.Equal(t, 10, s.IssueDailyCap)
	assert.Equal(t, "image-limit", s.ImageLimitKey)
	assert.Equal(t, 50, s.ImageDailyCap)
	assert.Equal(t, int64(10<<20), s.MaxImageBytes)
	assert.Equal(t, "issues:changes", s.ChangesChannel)
	assert.Equal(t, uint64(3), s.ModerationMaxRetries)
	assert.Equal(t, 2*time.Second, s.ModerationBaseDelay)
	assert.Equal(t, "@every 15m", s.PrioritySchedule)
	assert.False(t, s.IsProduction())
}

func TestLoadSettingsPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: \"9000\"\nissue_daily_limit: 3\ngo_env: production\n"), 0o600))
	t.Setenv("ISSUE_DAILY_LIMIT", "5")
	t.Setenv("MODERATION_BASE_DELAY", "250ms")

	s := LoadSettings(file)

	assert.Equal(t, "9000", s.Port)
	assert.Equal(t, 5, s.IssueDailyCap, "environment wins over the file")
	assert.Equal(t, 250*time.Millisecond, s.ModerationBaseDelay)
	assert.True(t, s.IsProduction())
}
