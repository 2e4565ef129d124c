package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGlobalConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadGlobalConfigFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ssh", "id_rsa"), cfg.Build.SSHKey)
	assert.Equal(t, DefaultHostAddr(), cfg.Build.HostAddr)
	assert.Equal(t, "claude", cfg.Start.Agent)
	assert.Equal(t, DefaultStalenessThreshold, cfg.Start.StalenessThreshold)
	assert.Empty(t, cfg.Storage.DatabasePath)
}

func TestLoadGlobalConfig_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[start]
agent = "codex"
staleness_threshold = 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadGlobalConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "codex", cfg.Start.Agent)
	assert.Equal(t, 10, cfg.Start.StalenessThreshold)
	// Unspecified sections keep defaults.
	assert.Equal(t, DefaultHostAddr(), cfg.Build.HostAddr)
	assert.NotEmpty(t, cfg.Build.SSHKey)
}

func TestLoadGlobalConfig_TildeExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[build]
ssh_key = "~/.ssh/id_ed25519"

[storage]
database_path = "~/dkr/history.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadGlobalConfigFrom(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), cfg.Build.SSHKey)
	assert.Equal(t, filepath.Join(home, "dkr", "history.db"), cfg.Storage.DatabasePath)
}

func TestLoadGlobalConfig_InvalidToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[build\nssh_key ="), 0644))

	_, err := loadGlobalConfigFrom(path)
	assert.Error(t, err)
}

func TestGlobalConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultGlobalConfig()
	cfg.Start.Agent = "opencode"
	cfg.Start.StalenessThreshold = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := loadGlobalConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "opencode", loaded.Start.Agent)
	assert.Equal(t, 7, loaded.Start.StalenessThreshold)
}
