package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ujohnny/dkr/internal/xdg"
)

// DefaultStalenessThreshold is the behind-count above which start-container
// offers to rebuild via the update plan before proceeding.
const DefaultStalenessThreshold = 50

// GlobalConfig represents the global dkr configuration, loaded from the XDG
// config directory (~/.config/dkr/config.toml).
type GlobalConfig struct {
	Build   BuildSettings   `toml:"build"`
	Start   StartSettings   `toml:"start"`
	Storage StorageSettings `toml:"storage"`
}

type BuildSettings struct {
	// SSHKey is the private key forwarded to BuildKit for the clone.
	SSHKey string `toml:"ssh_key"`
	// HostAddr is the address containers use to reach the origin host.
	HostAddr string `toml:"host_addr"`
}

type StartSettings struct {
	// Agent runs in the first tmux window (claude, codex, opencode, none).
	Agent string `toml:"agent"`
	// StalenessThreshold is the behind-count that triggers an update offer.
	StalenessThreshold int `toml:"staleness_threshold"`
}

type StorageSettings struct {
	// DatabasePath overrides the build-history ledger location.
	DatabasePath string `toml:"database_path"`
}

// DefaultHostAddr returns the address containers use to reach the host.
// Docker Desktop on macOS provides host.docker.internal; on Linux with
// --network=host the loopback works directly.
func DefaultHostAddr() string {
	if runtime.GOOS == "darwin" {
		return "host.docker.internal"
	}
	return "::1"
}

// DefaultGlobalConfig returns the default global configuration
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Build: BuildSettings{
			SSHKey:   "~/.ssh/id_rsa",
			HostAddr: DefaultHostAddr(),
		},
		Start: StartSettings{
			Agent:              "claude",
			StalenessThreshold: DefaultStalenessThreshold,
		},
	}
}

// LoadGlobalConfig loads the global configuration from the XDG config
// directory, applying defaults for any missing values.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configDir, err := xdg.ConfigDir()
	if err != nil {
		return nil, err
	}
	return loadGlobalConfigFrom(filepath.Join(configDir, "config.toml"))
}

func loadGlobalConfigFrom(configPath string) (*GlobalConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultGlobalConfig()
		if err := expandPaths(config); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config GlobalConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	// Apply defaults for any missing values
	defaults := DefaultGlobalConfig()
	if config.Build.SSHKey == "" {
		config.Build.SSHKey = defaults.Build.SSHKey
	}
	if config.Build.HostAddr == "" {
		config.Build.HostAddr = defaults.Build.HostAddr
	}
	if config.Start.Agent == "" {
		config.Start.Agent = defaults.Start.Agent
	}
	if config.Start.StalenessThreshold == 0 {
		config.Start.StalenessThreshold = defaults.Start.StalenessThreshold
	}

	if err := expandPaths(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Save saves the global configuration to the specified path
func (g *GlobalConfig) Save(path string) error {
	data, err := toml.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// expandPaths expands tilde paths in the configuration
func expandPaths(config *GlobalConfig) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if strings.HasPrefix(config.Build.SSHKey, "~/") {
		config.Build.SSHKey = filepath.Join(homeDir, config.Build.SSHKey[2:])
	}
	if strings.HasPrefix(config.Storage.DatabasePath, "~/") {
		config.Storage.DatabasePath = filepath.Join(homeDir, config.Storage.DatabasePath[2:])
	}

	return nil
}
