package catalog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Watcher reloads a catalog when its override file changes on disk.
// Editors typically replace files rather than write in place, so the parent
// directory is watched and events are debounced before reloading.
type Watcher struct {
	watcher      *fsnotify.Watcher
	path         string
	debounce     time.Duration
	onReload     func()
	stopCh       chan struct{}
	mu           sync.Mutex
	pendingTimer *time.Timer
}

// Watched is the minimal reload surface a watcher needs.
type Watched interface {
	Reload(overridesPath string) error
}

// NewWatcher creates a watcher for the catalog's override file.
func NewWatcher(c Watched, overridesPath string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(overridesPath)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{
		watcher:  fsWatcher,
		path:     overridesPath,
		debounce: debounce,
		stopCh:   make(chan struct{}),
	}
	w.onReload = func() {
		if err := c.Reload(overridesPath); err != nil {
			L_warn("catalog: reload after change failed", "path", overridesPath, "error", err)
		}
	}
	return w, nil
}

// Start begins watching. This spawns a goroutine internally.
func (w *Watcher) Start() {
	L_debug("catalog: watching overrides", "path", w.path)
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
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
			L_warn("catalog: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	L_debug("catalog: override file changed", "path", event.Name, "op", event.Op.String())
	w.triggerReload()
}

// triggerReload schedules a reload with debouncing.
func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.pendingTimer = nil
		w.mu.Unlock()

		L_info("catalog: overrides changed, reloading", "path", w.path)
		w.onReload()
	})
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
