package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.History.ScrollbackCap)
	assert.Equal(t, 1000, cfg.History.MaxMessages)
	assert.Equal(t, 24*time.Hour, cfg.History.Retention)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.History.Backend = "redis"
	cfg.Upload.RequireToken = true
	cfg.Upload.MaxBytes = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "redis"`)
	assert.Contains(t, err.Error(), "jwt.secret")
	assert.Contains(t, err.Error(), "upload.max_bytes")
}

func TestValidateRequiresDefaultRoom(t *testing.T) {
	cfg := Default()
	cfg.Rooms.Default = []string{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rooms.default")

	cfg.Rooms.Default = []string{" "}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be blank")
}

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default().Addr, cfg.Addr)
	assert.Equal(t, []string{"general", "random", "tech"}, cfg.Rooms.Names)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`addr: ":9090"
history:
  backend: sqlite
  scrollback_cap: 50
  prune_interval: 10m
rooms:
  names: [lobby, dev]
  default: [lobby]
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("CHATDISPATCH_LOG_LEVEL", "debug")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, BackendSQLite, cfg.History.Backend)
	assert.Equal(t, 50, cfg.History.ScrollbackCap)
	assert.Equal(t, 1000, cfg.History.MaxMessages)
	assert.Equal(t, 10*time.Minute, cfg.History.PruneInterval)
	assert.Equal(t, []string{"lobby", "dev"}, cfg.Rooms.Names)
	assert.Equal(t, []string{"lobby"}, cfg.Rooms.Default)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestUpdateFromOverridesNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234", Log: LogConfig{Level: "warn"}})

	assert.Equal(t, ":1234", cfg.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout)
}
