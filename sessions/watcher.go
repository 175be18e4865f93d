package sessions

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zenquiem/codex-accounts-switch/log"
)

// Watcher observes a sessions root and marks its index dirty on any change,
// letting untouched scans reuse the previous result. It is purely an
// optimization: if watching fails the index just rescans every time.
type Watcher struct {
	watcher *fsnotify.Watcher
	index   *Index
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// WatchIndex starts watching the index's sessions root and all its
// subdirectories. Fails when the root does not exist yet.
func WatchIndex(ix *Index) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := 0
	walkErr := filepath.WalkDir(ix.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsWatcher.Add(path); err != nil {
			log.Debug().Err(err).Str("dir", path).Msg("failed to watch directory")
			return nil
		}
		dirs++
		return nil
	})
	if walkErr != nil {
		fsWatcher.Close()
		return nil, walkErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: fsWatcher,
		index:   ix,
		cancel:  cancel,
	}
	ix.setWatched(true)

	w.wg.Add(1)
	go w.loop(ctx)

	log.Debug().Int("watchedDirs", dirs).Str("root", ix.Root()).Msg("started sessions watcher")
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("fsnotify error")
			// Events may have been dropped; treat the tree as changed.
			w.index.MarkDirty()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// The persisted index rewrites itself after every changed scan; reacting
	// to those writes would make every scan dirty the next one.
	base := filepath.Base(event.Name)
	if base == indexFileName || base == indexFileName+".tmp" {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		// New subdirectories (e.g. fresh date folders) must be watched too.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err == nil {
				log.Debug().Str("dir", event.Name).Msg("watching new directory")
			}
		}
	}

	w.index.MarkDirty()
}

// Close stops the watcher; the index falls back to scanning every call.
func (w *Watcher) Close() {
	w.index.setWatched(false)
	w.index.MarkDirty()
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
}
