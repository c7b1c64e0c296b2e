package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
)

// reloadDebounce coalesces the burst of fsnotify events editors emit for a
// single save.
const reloadDebounce = 250 * time.Millisecond

// ConfigWatcher reloads the configuration file on change, rebuilds the
// pipeline snapshot, and swaps it into the server. A reload that fails to
// parse, validate, or compile leaves the running snapshot untouched.
type ConfigWatcher struct {
	path    string
	server  *Server
	rebuild func(*config.Config) (*gateway.Engine, error)
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewConfigWatcher creates a watcher for the given config file. rebuild
// compiles a loaded configuration into a fresh engine.
func NewConfigWatcher(path string, s *Server, rebuild func(*config.Config) (*gateway.Engine, error), logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	return &ConfigWatcher{
		path:    path,
		server:  s,
		rebuild: rebuild,
		logger:  logger.With("component", "config.watcher"),
		watcher: fw,
	}, nil
}

// Watch blocks processing file events until the context is cancelled.
func (w *ConfigWatcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerCh:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.logger.Error("config reload rejected", "path", w.path, "error", err)
		return
	}
	engine, err := w.rebuild(cfg)
	if err != nil {
		w.logger.Error("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.server.SwapEngine(engine)
	w.logger.Info("configuration reloaded", "path", w.path)
}
