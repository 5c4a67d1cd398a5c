package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// Watcher reloads datasets when files in the data directory change. Bursts of
// events are collapsed into one reload after the debounce interval.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	clock    clockwork.Clock
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher starts watching the loader's directory. Call Run to process events.
func NewWatcher(loader *Loader, clock clockwork.Clock, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(loader.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch data dir %s: %w", loader.Dir(), err)
	}
	return &Watcher{
		loader:   loader,
		watcher:  fw,
		clock:    clock,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run processes file events until the context is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var pending clockwork.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("dataset file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			if pending != nil {
				pending.Stop()
			}
			pending = w.clock.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("dataset watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := w.loader.Reload(); err != nil {
		w.logger.Warn("dataset reload failed, keeping previous data", "error", err)
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return slices.Contains(Files, filepath.Base(event.Name))
}
