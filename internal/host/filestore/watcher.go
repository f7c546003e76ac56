package filestore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gitmarks/gitmarks/internal/logging"
)

// watcher follows the document through fsnotify. The directory is watched
// rather than the file because editors and our own atomic writes replace
// the file, which drops a watch on the old inode.
type watcher struct {
	store   *Store
	fsw     *fsnotify.Watcher
	name    string
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func newWatcher(s *Store) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", s.path, err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(absPath), err)
	}

	w := &watcher{
		store:   s,
		fsw:     fsw,
		name:    filepath.Base(absPath),
		done:    make(chan struct{}),
		running: true,
	}
	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// stop blocks until the event loop has exited.
func (w *watcher) stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.store.reload()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warnf(w.store.logger, "Watcher error: %v", err)
		}
	}
}

// relevant reports whether the event may have changed the document's content.
// Removals are ignored: an atomic replace is followed by a create, and a
// deleted document keeps its last known tree.
func (w *watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.name {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}
