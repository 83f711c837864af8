package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit per save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the merged configuration whenever config.json changes in
// globalDir or in the repo config directory found from startDir, and passes
// the new value to onChange. Invalid files are logged and skipped; the last
// good configuration stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, globalDir, startDir string, onChange func(*Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch directories, not files: editors replace files on save.
	dirs := []string{globalDir}
	if repo := FindRepoConfig(startDir); repo != "" {
		dirs = append(dirs, filepath.Dir(repo))
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return err
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != "config.json" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := LoadWithRepo(globalDir, startDir)
			if err != nil {
				slog.Warn("config reload failed", "error", err)
				continue
			}
			slog.Info("config reloaded")
			onChange(cfg)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Debug("config watcher error", "error", err)
		}
	}
}
