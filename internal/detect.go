package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// StoragePaths holds the default locations chatstream reads and writes
type StoragePaths struct {
	DataDir    string // chat store directory
	ConfigDir  string // directory holding config.yaml
	ConfigFile string
}

// DetectStoragePaths detects the default paths based on the operating system
func DetectStoragePaths() (StoragePaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return StoragePaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var dataDir, configDir string
	switch runtime.GOOS {
	case "darwin":
		dataDir = filepath.Join(home, "Library/Application Support/chatstream")
		configDir = filepath.Join(home, ".config/chatstream")
	case "linux":
		dataDir = filepath.Join(home, ".local/share/chatstream")
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "chatstream")
		}
		configDir = filepath.Join(home, ".config/chatstream")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "chatstream")
		}
	default:
		return StoragePaths{}, fmt.Errorf("unsupported OS: %s (only macOS and Linux are supported)", runtime.GOOS)
	}

	return StoragePaths{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, "config.yaml"),
	}, nil
}

// DatabasePath returns the path of the sqlite chat store
func (sp StoragePaths) DatabasePath() string {
	return SQLiteStorePath(sp.DataDir)
}

// DatabaseExists checks if the sqlite chat store has been created
func (sp StoragePaths) DatabaseExists() bool {
	_, err := os.Stat(sp.DatabasePath())
	return err == nil
}

// FileStoreDir returns the directory used by the file store
func (sp StoragePaths) FileStoreDir() string {
	return filepath.Join(sp.DataDir, "sessions")
}
