package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestRetrieverDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
	}

	dir := RetrieverDir()
	if dir == "" {
		t.Error("RetrieverDir returned empty string")
	}
	if !strings.Contains(strings.ToLower(dir), "retriever") {
		t.Errorf("Expected path to contain 'retriever', got: %s", dir)
	}
}

func TestConfigFilePath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path := ConfigFilePath()
	expected := filepath.Join(RetrieverDir(), "config.yaml")
	if path != expected {
		t.Errorf("ConfigFilePath mismatch. Got %s, want %s", path, expected)
	}
}

func TestCredentialsFilePath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path := CredentialsFilePath()
	expected := filepath.Join(RetrieverDir(), "credentials.yaml")
	if path != expected {
		t.Errorf("CredentialsFilePath mismatch. Got %s, want %s", path, expected)
	}
}

func TestRuntimeDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_RUNTIME_DIR semantics only apply on Linux")
	}

	tmpDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	dir := RuntimeDir()
	expected := filepath.Join(tmpDir, "retriever")
	if dir != expected {
		t.Errorf("RuntimeDir mismatch. Got %s, want %s", dir, expected)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("RuntimeDir did not create directory: %s", dir)
	}
}

func TestRuntimeDirFallback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("fallback only exercised on Linux")
	}

	t.Setenv("XDG_RUNTIME_DIR", "")

	dir := RuntimeDir()
	if !strings.HasSuffix(dir, "retriever") {
		t.Errorf("Expected fallback RuntimeDir to end with 'retriever', got: %s", dir)
	}
	if !strings.HasPrefix(dir, os.TempDir()) {
		t.Errorf("Expected fallback RuntimeDir to be under os.TempDir(), got: %s", dir)
	}
}

func TestLockFilePath(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	}

	path := LockFilePath()
	expected := filepath.Join(RuntimeDir(), "daemon.lock")
	if path != expected {
		t.Errorf("LockFilePath mismatch. Got %s, want %s", path, expected)
	}
}

func TestLogFilePath(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	}

	path := LogFilePath()
	expected := filepath.Join(RuntimeDir(), "daemon.log")
	if path != expected {
		t.Errorf("LogFilePath mismatch. Got %s, want %s", path, expected)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	info, err := os.Stat(RetrieverDir())
	if err != nil {
		t.Fatalf("RetrieverDir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("RetrieverDir exists but is not a directory")
	}
}

