// Package config resolves daemon/CLI ambient configuration: XDG-style
// directories and a viper-backed settings file (listen address, allowed
// peers, queue/pool sizing, tracing endpoint).
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// RetrieverDir returns the platform-appropriate base config directory,
// adapted from the teacher's GetSurgeDir.
func RetrieverDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(appData, "retriever")

	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "retriever")

	case "linux":
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "retriever")

	default:
		configDir, _ := os.UserConfigDir()
		return filepath.Join(configDir, "retriever")
	}
}

// RuntimeDir returns a directory for the daemon's PID/lock file, under
// XDG_RUNTIME_DIR on Linux (falling back to the OS temp dir elsewhere),
// adapted from the teacher's GetRuntimeDir.
func RuntimeDir() string {
	var base string

	if runtime.GOOS == "linux" {
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			base = dir
		}
	}
	if base == "" {
		base = os.TempDir()
	}

	dir := filepath.Join(base, "retriever")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return base
	}
	return dir
}

// ConfigFilePath returns the path to the daemon settings file.
func ConfigFilePath() string {
	return filepath.Join(RetrieverDir(), "config.yaml")
}

// CredentialsFilePath returns the path to the credentials config tier,
// per SPEC_FULL.md's config-file credential discovery tier.
func CredentialsFilePath() string {
	return filepath.Join(RetrieverDir(), "credentials.yaml")
}

// LockFilePath returns the path to the single-instance guard file
// consulted via gofrs/flock by the daemon process (`retriever daemon run`,
// which `retriever daemon start` spawns).
func LockFilePath() string {
	return filepath.Join(RuntimeDir(), "daemon.lock")
}

// LogFilePath returns the path `retriever daemon start` redirects the
// detached daemon child's stdout/stderr to.
func LogFilePath() string {
	return filepath.Join(RuntimeDir(), "daemon.log")
}

// EnsureDir creates the retriever config directory if missing.
func EnsureDir() error {
	return os.MkdirAll(RetrieverDir(), 0o755)
}
