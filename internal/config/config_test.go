package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TEMP_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3100, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.Quota.FreeLifetime)
	assert.Equal(t, 10, cfg.Quota.FreeDailyPhotos)
	assert.Equal(t, int64(50), cfg.Media.MaxFileMB)
	assert.Equal(t, int64(30), cfg.Media.WarnFileMB)
	assert.Equal(t, 1024, cfg.Media.CaptionLimit)
	assert.Equal(t, 2*time.Second, cfg.Session.FloodMargin)
	assert.True(t, cfg.PremiumStacking)
	assert.NotEmpty(t, cfg.Media.TempDir, "temp dir falls back to os temp")
}

func TestLoad_AdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "42,1001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{42, 1001}, cfg.AdminIDs)
	assert.True(t, cfg.IsAdmin(42))
	assert.True(t, cfg.IsAdmin(1001))
	assert.False(t, cfg.IsAdmin(7))
}

func TestLoad_RejectsWarnAboveMax(t *testing.T) {
	t.Setenv("MAX_FILE_MB", "20")
	t.Setenv("WARN_FILE_MB", "30")

	_, err := Load()
	assert.Error(t, err)
}

func TestRequireTelegram(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireTelegram())

	cfg.BotToken = "123:abc"
	assert.Error(t, cfg.RequireTelegram())

	cfg.TGApiID = 12345
	cfg.TGApiHash = "hash"
	assert.NoError(t, cfg.RequireTelegram())
}

func TestMediaConfig_Bytes(t *testing.T) {
	m := MediaConfig{MaxFileMB: 50, WarnFileMB: 30}
	assert.Equal(t, int64(50*1024*1024), m.MaxFileBytes())
	assert.Equal(t, int64(30*1024*1024), m.WarnFileBytes())
}
