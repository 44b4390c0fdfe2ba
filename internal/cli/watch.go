package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/keepassxc"
)

const defaultWatchDebounce = 300 * time.Millisecond

// configWatcher reloads the config file when it changes on disk.
// The directory is watched rather than the file so editors that replace
// the file on save are still seen.
type configWatcher struct {
	path     string
	debounce time.Duration
	log      keepassxc.Logger
	load     func() (*config.Config, error)
	apply    func(*config.Config)
}

// Run blocks until ctx is cancelled. A reload already in progress finishes
// before Run returns.
func (w *configWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.log.Debug("watching %s for config changes", w.path)

	target := filepath.Clean(w.path)
	var (
		debounceTimer *time.Timer
		pending       sync.WaitGroup
	)
	cancelPending := func() {
		if debounceTimer != nil && debounceTimer.Stop() {
			pending.Done()
		}
	}
	defer func() {
		cancelPending()
		pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("config file event: %s", event.Op)

			cancelPending()
			pending.Add(1)
			debounceTimer = time.AfterFunc(w.debounce, func() {
				defer pending.Done()
				if ctx.Err() != nil {
					return
				}
				w.reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("config watcher: %v", err)
		}
	}
}

func (w *configWatcher) reload() {
	next, err := w.load()
	if err != nil {
		w.log.Error("config reload failed: %v", err)
		return
	}
	w.log.Debug("config reloaded from %s", w.path)
	w.apply(next)
}
