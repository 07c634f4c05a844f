package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, json string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(json), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// TestWatch_ReloadsOnWrite verifies that rewriting the watched config file
// propagates the new values into the live *Config via ReplaceFrom.
func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFile(t, path, `{"gateway":{"port":18790}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := Watch(path, cfg, stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeConfigFile(t, path, `{"gateway":{"port":19999}}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cfg.mu.RLock()
		port := cfg.Gateway.Port
		cfg.mu.RUnlock()
		if port == 19999 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config did not reload within deadline, Gateway.Port = %d", cfg.Gateway.Port)
}

// TestWatch_IgnoresOtherFilesInDir verifies that writes to unrelated files in
// the same directory do not trigger a reload.
func TestWatch_IgnoresOtherFilesInDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFile(t, path, `{"gateway":{"port":18790}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := Watch(path, cfg, stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeConfigFile(t, filepath.Join(dir, "unrelated.txt"), "noise")
	time.Sleep(200 * time.Millisecond)

	cfg.mu.RLock()
	port := cfg.Gateway.Port
	cfg.mu.RUnlock()
	if port != 18790 {
		t.Errorf("expected unrelated file write to not affect config, got port %d", port)
	}
}

// TestWatch_InvalidRewriteKeepsPreviousConfig verifies that writing malformed
// JSON to the watched file logs a warning and leaves the live config intact.
func TestWatch_InvalidRewriteKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFile(t, path, `{"gateway":{"port":18790}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := Watch(path, cfg, stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeConfigFile(t, path, `not valid json5 {{{`)
	time.Sleep(200 * time.Millisecond)

	cfg.mu.RLock()
	port := cfg.Gateway.Port
	cfg.mu.RUnlock()
	if port != 18790 {
		t.Errorf("expected config to remain unchanged after invalid reload, got port %d", port)
	}
}

// TestWatch_StopStopsWatching verifies that closing stop halts the watcher
// goroutine so subsequent file writes are no longer observed.
func TestWatch_StopStopsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFile(t, path, `{"gateway":{"port":18790}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	stop := make(chan struct{})
	if err := Watch(path, cfg, stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	close(stop)
	time.Sleep(50 * time.Millisecond)

	writeConfigFile(t, path, `{"gateway":{"port":22222}}`)
	time.Sleep(200 * time.Millisecond)

	cfg.mu.RLock()
	port := cfg.Gateway.Port
	cfg.mu.RUnlock()
	if port == 22222 {
		t.Errorf("expected watcher to have stopped, but config still reloaded")
	}
}
