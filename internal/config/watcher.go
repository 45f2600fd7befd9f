package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agrovision/weedscan/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk. The
// reloaded value takes effect the next time a caller asks Latest; the
// pipeline polls it between frames, never mid-frame.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu      sync.RWMutex
	current Config
}

// NewWatcher loads the file once and starts watching it. The watcher stops
// when ctx is cancelled.
func NewWatcher(ctx context.Context, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		// File may not exist yet; watch its directory is overkill here,
		// Latest simply keeps returning defaults until a reload succeeds.
		logger.Debug("Config", "watch %s: %v", path, err)
	}

	w := &Watcher{
		path:    path,
		fsw:     fsw,
		current: Load(path),
	}

	go w.run(ctx)
	return w, nil
}

// Latest returns the most recently loaded configuration.
func (w *Watcher) Latest() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg := Load(w.path)
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			logger.Info("Config", "reloaded %s", w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Config", "watch error: %v", err)
		}
	}
}
