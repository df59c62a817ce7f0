package settings

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	logger   *log.Logger
	debounce time.Duration
}

// NewWatcher constructs a watcher for a file-backed store.
func NewWatcher(store *Store, logger *log.Logger) (*Watcher, error) {
	if store == nil {
		return nil, errors.New("settings watcher: nil store")
	}
	if store.Path() == "" {
		return nil, errors.New("settings watcher: store has no file")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{store: store, logger: logger, debounce: defaultDebounce}, nil
}

// Run watches the settings directory until ctx is cancelled. The directory
// is watched rather than the file so that atomic replacements are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	path := filepath.Clean(w.store.Path())
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("settings watcher error: %v", err)
		case <-timer.C:
			if _, err := w.store.Load(); err != nil {
				w.logger.Printf("settings reload failed: path=%s err=%v", path, err)
				continue
			}
			w.logger.Printf("settings reloaded: path=%s", path)
		}
	}
}
