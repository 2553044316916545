package policy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watcher re-registers a policy file whenever it changes on disk.
type Watcher struct {
	repo     *Repository
	path     string
	debounce time.Duration
}

// NewWatcher creates a watcher for path. A zero debounce uses 200ms.
func NewWatcher(repo *Repository, path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &Watcher{repo: repo, path: path, debounce: debounce}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file so editors that replace the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "policy: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return eris.Wrapf(err, "policy: resolve %s", w.path)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return eris.Wrapf(err, "policy: watch %s", filepath.Dir(abs))
	}

	log := zap.L().With(zap.String("component", "policy.watcher"), zap.String("path", abs))
	log.Info("watching policy file")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("policy watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.repo.RegisterFile(abs); err != nil {
				log.Warn("policy file reload failed, keeping current policies", zap.Error(err))
				continue
			}
			log.Info("policy file reloaded")
		}
	}
}
