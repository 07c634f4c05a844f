package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place from path whenever the file changes on disk,
// running until stop is closed. Editors typically replace rather than
// truncate-and-rewrite a file, so the containing directory is watched and
// Write, Create and Rename events for path trigger a reload attempt; events
// for other files in that directory are ignored.
func Watch(path string, cfg *Config, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reloaded, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed, keeping previous config", "path", path, "error", err)
					continue
				}
				cfg.ReplaceFrom(reloaded)
				slog.Info("config reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
