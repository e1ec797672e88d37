package crew

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"resumecrew/internal/errors"
)

// OpenStore loads the definition file at path, or the built-in definition
// when path is empty.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return NewStore(DefaultDefinition()), nil
	}
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	return NewStore(def), nil
}

// Watcher reloads a definition file into a Store whenever it changes.
// A file that fails to parse is logged and the previous definition stays active.
type Watcher struct {
	path     string
	store    *Store
	logger   *errors.Logger
	debounce time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, store *Store, logger *errors.Logger) *Watcher {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &Watcher{path: path, store: store, logger: logger, debounce: 500 * time.Millisecond}
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors replacing the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.LogError(err, "Failed to close crew definition watcher")
		}
	}()

	target := filepath.Clean(w.path)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	w.logger.Info("Crew definition watcher started", "file", target)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Crew definition watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	def, err := LoadDefinition(w.path)
	if err != nil {
		w.logger.LogError(err, "Crew definition reload failed, keeping previous definition", "file", w.path)
	} else {
		w.store.set(def)
		w.logger.Info("Crew definition reloaded", "file", w.path, "agents", len(def.Agents), "tasks", len(def.Tasks))
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
