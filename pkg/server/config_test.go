package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4506, cfg.RendezvousPort)
	assert.Equal(t, 4507, cfg.HTTPPort)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout())
	assert.Equal(t, 100*time.Second, cfg.SessionTimeout())
	assert.Equal(t, uint32(4096), cfg.MaxMessageLength)
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), cfg)

	// The file was written so the operator can edit it
	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Loading again reads the file back to the same values
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	content := `
[server]
rendezvous_port = 9000
database_path = "/tmp/huddle-test.db"

[limits]
session_timeout_seconds = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	serverCfg := cfg.ToServerConfig()
	assert.Equal(t, 9000, serverCfg.RendezvousPort)
	assert.Equal(t, 30, serverCfg.SessionTimeoutSeconds)
	// Unset values fall back to defaults
	assert.Equal(t, 4507, serverCfg.HTTPPort)
	assert.Equal(t, uint32(4096), serverCfg.MaxMessageLength)

	dbPath, err := cfg.GetDatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/huddle-test.db", dbPath)
}

func TestGetDatabasePathExpandsHome(t *testing.T) {
	cfg := DefaultTOMLConfig()

	path, err := cfg.GetDatabasePath()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".huddle/huddle.db"), path)
}
