// Package watcher reports the creation and deletion of marker files inside
// workspace folders, using fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/schemadb/internal/store"
)

// ErrClosed is returned by operations on a closed MarkerWatcher.
var ErrClosed = errors.New("watcher is closed")

// MarkerWatcher watches workspace folders non-recursively and emits
// store.MarkerCreated and store.MarkerDeleted events for their marker file.
//
// It implements store.Watcher.
type MarkerWatcher struct {
	w *fsnotify.Watcher

	mu      sync.Mutex
	folders map[string]store.Folder // Keyed by absolute folder path.
	closed  bool

	events  chan store.Event
	errors  chan error
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New starts a MarkerWatcher.
func New() (*MarkerWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	m := &MarkerWatcher{
		w:       fsw,
		folders: make(map[string]store.Folder),
		events:  make(chan store.Event, 16),
		errors:  make(chan error, 4),
		closeCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

// Watch starts watching the folder.
func (m *MarkerWatcher) Watch(f store.Folder) error {
	dir, err := filepath.Abs(f.Path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.folders[dir]; ok {
		m.folders[dir] = f
		return nil
	}
	if err := m.w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	m.folders[dir] = f
	return nil
}

// Unwatch stops watching the folder. Unknown folders are ignored.
func (m *MarkerWatcher) Unwatch(f store.Folder) error {
	dir, err := filepath.Abs(f.Path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.folders[dir]; !ok {
		return nil
	}
	delete(m.folders, dir)
	if err := m.w.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

// Events returns the channel of marker events. It is closed by Close.
func (m *MarkerWatcher) Events() <-chan store.Event {
	return m.events
}

// Errors returns the channel of watch errors. It is closed by Close.
func (m *MarkerWatcher) Errors() <-chan error {
	return m.errors
}

// Run calls handle for every event until ctx is done or the watcher is
// closed. Handler and watch errors are logged.
func (m *MarkerWatcher) Run(ctx context.Context, handle func(context.Context, store.Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.events:
			if !ok {
				return
			}
			if err := handle(ctx, ev); err != nil {
				slog.ErrorContext(ctx, "Failed to handle marker event", "kind", ev.Kind, "folder", ev.Folder.Path, "err", err)
			}
		case err, ok := <-m.errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Error watching folders", "err", err)
		}
	}
}

// Close stops the watcher and closes both channels.
func (m *MarkerWatcher) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.closeCh)
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
	close(m.errors)
	return m.w.Close()
}

func (m *MarkerWatcher) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.closeCh:
			return
		case e, ok := <-m.w.Events:
			if !ok {
				return
			}
			if ev, ok := m.convert(e); ok {
				select {
				case m.events <- ev:
				case <-m.closeCh:
					return
				}
			}
		case err, ok := <-m.w.Errors:
			if !ok {
				return
			}
			select {
			case m.errors <- err:
			default:
			}
		}
	}
}

// convert maps an fsnotify event to a marker event, if it concerns the marker
// file of a watched folder.
func (m *MarkerWatcher) convert(e fsnotify.Event) (store.Event, bool) {
	if filepath.Base(e.Name) != store.MarkerFileName {
		return store.Event{}, false
	}
	m.mu.Lock()
	f, ok := m.folders[filepath.Dir(e.Name)]
	m.mu.Unlock()
	if !ok {
		return store.Event{}, false
	}
	switch {
	case e.Has(fsnotify.Create):
		return store.Event{Kind: store.MarkerCreated, Folder: f}, true
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		return store.Event{Kind: store.MarkerDeleted, Folder: f}, true
	default:
		return store.Event{}, false
	}
}
