package commands

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/colonyops/hivesync/internal/client"
	"github.com/colonyops/hivesync/internal/core/config"
)

// DefaultServerURL is where client commands look for a running server.
const DefaultServerURL = "http://127.0.0.1:7420"

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	ServerURL  string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// Client returns an API client for the configured server.
func (f *Flags) Client() *client.Client {
	return client.New(f.ServerURL)
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "hivesync", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "hivesync")
}

// DefaultLogFile returns the server log path in the system's state directory.
// On macOS: ~/Library/Logs/hivesync/hivesync.log
// On Linux: $XDG_STATE_HOME/hivesync/hivesync.log (defaults to ~/.local/state)
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "hivesync", "hivesync.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "hivesync", "hivesync.log")
	}

	return filepath.Join(home, ".local", "state", "hivesync", "hivesync.log")
}
