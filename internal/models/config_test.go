package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: \":9090\"\nimage:\n  gradient_strength: 100\n  process_timeout: 5s\nkafka:\n  brokers: [\"localhost:9092\"]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, 1000, cfg.Image.MaxWidth)
	assert.Equal(t, 3000, cfg.Image.MaxHeight)
	assert.Equal(t, 600, cfg.Image.ThumbnailWidth)
	assert.Equal(t, 450, cfg.Image.ThumbnailHeight)
	assert.Equal(t, 1.5, cfg.Image.VerticalThreshold)
	assert.Equal(t, 100, cfg.Image.GradientStrength)
	assert.Equal(t, 5*time.Second, cfg.Image.ProcessTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "portfolio-thumbnails", cfg.Kafka.Topic)
	assert.Equal(t, "admin_auth_token", cfg.Auth.AdminCookie)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: [\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
