package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "copilot-session"

// StatePaths holds the local directories used by the CLI
type StatePaths struct {
	StateDir string // token database and config.yaml
	CacheDir string // read-only session replay cache
}

// DetectStatePaths detects the state paths based on the operating system
func DetectStatePaths() (StatePaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return StatePaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var stateDir, cacheDir string
	switch runtime.GOOS {
	case "darwin":
		stateDir = filepath.Join(home, "Library/Application Support", appDirName)
		cacheDir = filepath.Join(home, "Library/Caches", appDirName)
	case "linux":
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		cacheHome := os.Getenv("XDG_CACHE_HOME")
		if cacheHome == "" {
			cacheHome = filepath.Join(home, ".cache")
		}
		stateDir = filepath.Join(configHome, appDirName)
		cacheDir = filepath.Join(cacheHome, appDirName)
	default:
		return StatePaths{}, fmt.Errorf("unsupported OS: %s (only macOS and Linux are supported)", runtime.GOOS)
	}

	return StatePaths{StateDir: stateDir, CacheDir: cacheDir}, nil
}

// GetStatePaths returns paths rooted at custom, or the detected defaults
func GetStatePaths(custom string) (StatePaths, error) {
	if custom == "" {
		return DetectStatePaths()
	}
	return StatePaths{
		StateDir: custom,
		CacheDir: filepath.Join(custom, "cache"),
	}, nil
}

// StateDBPath returns the path to the token database
func (sp StatePaths) StateDBPath() string {
	return filepath.Join(sp.StateDir, "state.db")
}

// StateDBExists checks if the token database exists
func (sp StatePaths) StateDBExists() bool {
	_, err := os.Stat(sp.StateDBPath())
	return err == nil
}

// ConfigPath returns the path to config.yaml
func (sp StatePaths) ConfigPath() string {
	return filepath.Join(sp.StateDir, "config.yaml")
}

// EnsureStateDir creates the state directory with user-only permissions
func (sp StatePaths) EnsureStateDir() error {
	return os.MkdirAll(sp.StateDir, 0700)
}
