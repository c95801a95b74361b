package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", "key")
	t.Setenv("UPLOAD_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "* * * * *", cfg.OutboxSweepCron)
	assert.Equal(t, 1000, cfg.MaxMessagesPerConversation)
	assert.Contains(t, cfg.DatabaseURL, "postgres://")
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "key")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFileThenEnv(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_driver: sqlite\nport: 9100\ncors_origins: [\"https://chat.example\"]\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, []string{"https://chat.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList("  "))
}
