package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ReadStatusFile parses a status file. A missing file means offline.
// Recognized values are online/up/1 and offline/down/0; anything else is
// reported as an error.
func ReadStatusFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "online", "up", "1":
		return true, nil
	case "offline", "down", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized status %q in %s", strings.TrimSpace(string(data)), path)
	}
}

// WatchFile feeds the contents of a status file into m until ctx is done.
// The parent directory is watched so the file may be created, replaced by
// rename, or removed. It returns once the watch is established; errors
// after that are logged.
func (m *Monitor) WatchFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	log := slog.Default().With("component", "connectivity", "file", path)
	m.refresh(path, log)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				m.refresh(path, log)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("status watch error", "err", err)
			}
		}
	}()
	return nil
}

func (m *Monitor) refresh(path string, log *slog.Logger) {
	online, err := ReadStatusFile(path)
	if err != nil {
		log.Warn("read status file", "err", err)
		return
	}
	m.Set(online)
}
