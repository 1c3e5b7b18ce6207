package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDeviceName(t *testing.T) {
	t.Setenv("DEVICE_NAME", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVICE_NAME")
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DEVICE_NAME", "desk")
	t.Setenv("DEVICE_ID", "")
	t.Setenv("API_PORT", "")
	t.Setenv("API_BASE_PATH", "")
	t.Setenv("TRANSFER_TIMEOUT_SECONDS", "")
	t.Setenv("ICON_DIRS", "")
	t.Setenv("SETTINGS_DB_PATH", "")
	t.Setenv("LOG_DIR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "desk", cfg.Device.Name)
	assert.NotEmpty(t, cfg.Device.ID)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, 30*time.Second, cfg.Transfer.Timeout)
	assert.NotEmpty(t, cfg.Icons.Dirs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("DEVICE_NAME", "desk")
	t.Setenv("DEVICE_ID", "dev-1")
	t.Setenv("TRANSFER_TIMEOUT_SECONDS", "5")
	t.Setenv("ICON_DIRS", "/a:/b")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev-1", cfg.Device.ID)
	assert.Equal(t, 5*time.Second, cfg.Transfer.Timeout)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Icons.Dirs)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
