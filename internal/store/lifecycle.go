package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
)

// EventKind is a folder or marker file lifecycle event.
type EventKind int

// Lifecycle events consumed by HandleEvent.
const (
	FolderAdded EventKind = iota + 1
	FolderRemoved
	MarkerCreated
	MarkerDeleted
)

func (k EventKind) String() string {
	switch k {
	case FolderAdded:
		return "folder-added"
	case FolderRemoved:
		return "folder-removed"
	case MarkerCreated:
		return "marker-created"
	case MarkerDeleted:
		return "marker-deleted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a lifecycle event about a workspace folder.
type Event struct {
	Kind   EventKind
	Folder Folder
}

// Open registers the initial workspace folders concurrently.
func (s *Store) Open(ctx context.Context, folders []Folder) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, f := range folders {
		eg.Go(func() error {
			return s.AddFolder(ctx, f)
		})
	}
	return eg.Wait()
}

// HandleEvent applies a lifecycle event.
func (s *Store) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case FolderAdded:
		return s.AddFolder(ctx, ev.Folder)
	case FolderRemoved:
		return s.RemoveFolder(ctx, ev.Folder)
	case MarkerCreated:
		if _, ok := s.Folder(ev.Folder.Name); !ok {
			slog.DebugContext(ctx, "Ignoring marker of unknown folder", "folder", ev.Folder.Path)
			return nil
		}
		return s.beginLoad(ctx, ev.Folder)
	case MarkerDeleted:
		s.unload(ctx, ev.Folder.Name)
		return nil
	default:
		return fmt.Errorf("unknown event kind %v", ev.Kind)
	}
}

// AddFolder registers a workspace folder and starts watching it. The
// collection is loaded right away if the marker file exists.
func (s *Store) AddFolder(ctx context.Context, f Folder) error {
	if f.Name == "" || f.Path == "" {
		return fmt.Errorf("folder requires a name and a path, got %+v", f)
	}
	if IsNativeSchemaCollection(f.Name) {
		return fmt.Errorf("folder name %q is reserved", f.Name)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notInitialized()
	}
	prev, known := s.folders[f.Name]
	if known && prev.Path != f.Path {
		s.mu.Unlock()
		return fmt.Errorf("collection %q is already bound to %s", f.Name, prev.Path)
	}
	s.folders[f.Name] = f
	s.notifyTransitionLocked()
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Watch(f); err != nil {
			if !known {
				s.mu.Lock()
				if s.folders[f.Name] == f {
					delete(s.folders, f.Name)
					s.notifyTransitionLocked()
				}
				s.mu.Unlock()
			}
			return fmt.Errorf("failed to watch %s: %w", f.Path, err)
		}
	}
	slog.InfoContext(ctx, "Folder added", "collection", f.Name, "folder", f.Path)
	s.emit(ctx, Change{Kind: CollectionsChanged})
	if _, err := os.Stat(f.MarkerPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat marker: %w", err)
	}
	return s.beginLoad(ctx, f)
}

// RemoveFolder unloads the folder's collection and stops watching it. The
// files on disk are left untouched.
func (s *Store) RemoveFolder(ctx context.Context, f Folder) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notInitialized()
	}
	// The event may only carry the name; unwatch the registered folder.
	reg, ok := s.folders[f.Name]
	delete(s.folders, f.Name)
	s.mu.Unlock()
	if !ok {
		slog.DebugContext(ctx, "Ignoring removal of unknown folder", "collection", f.Name)
		return nil
	}
	f = reg
	s.unload(ctx, f.Name)
	if s.watcher != nil {
		if err := s.watcher.Unwatch(f); err != nil {
			return fmt.Errorf("failed to unwatch %s: %w", f.Path, err)
		}
	}
	slog.InfoContext(ctx, "Folder removed", "collection", f.Name, "folder", f.Path)
	s.emit(ctx, Change{Kind: CollectionsChanged})
	return nil
}

// WaitLoaded blocks until the collection is loaded or ctx is done.
func (s *Store) WaitLoaded(ctx context.Context, name string) error {
	_, err := s.awaitLoaded(ctx, name)
	return err
}

// beginLoad moves a workspace collection to Loading and opens its table in
// the background. It is a no-op if the collection is already loading or
// loaded.
func (s *Store) beginLoad(ctx context.Context, f Folder) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notInitialized()
	}
	if c := s.collections[f.Name]; c != nil {
		s.mu.Unlock()
		slog.DebugContext(ctx, "Collection already present", "collection", f.Name, "state", c.state)
		return nil
	}
	c := &collection{name: f.Name, folder: f, state: Loading}
	s.collections[f.Name] = c
	s.notifyTransitionLocked()
	s.mu.Unlock()

	slog.InfoContext(ctx, "Loading collection", "collection", f.Name, "folder", f.Path)
	go s.finishLoad(context.WithoutCancel(ctx), c)
	return nil
}

// finishLoad opens the storage handle of c and publishes it, unless c was
// unloaded in the meantime.
func (s *Store) finishLoad(ctx context.Context, c *collection) {
	table, err := s.openTable(c.folder.MarkerPath())
	s.mu.Lock()
	if s.collections[c.name] != c {
		s.mu.Unlock()
		slog.DebugContext(ctx, "Collection unloaded while loading", "collection", c.name)
		return
	}
	if err != nil {
		delete(s.collections, c.name)
		s.notifyTransitionLocked()
		s.mu.Unlock()
		slog.ErrorContext(ctx, "Failed to load collection", "collection", c.name, "err", err)
		return
	}
	c.table = table
	c.state = Loaded
	s.notifyTransitionLocked()
	s.mu.Unlock()
	slog.InfoContext(ctx, "Collection loaded", "collection", c.name, "records", table.Len())
	s.emit(ctx, Change{Kind: CollectionsChanged})
}

// unload drops the in-memory handle of a workspace collection.
func (s *Store) unload(ctx context.Context, name string) {
	s.mu.Lock()
	c := s.collections[name]
	if c == nil || c.native {
		s.mu.Unlock()
		return
	}
	delete(s.collections, name)
	s.notifyTransitionLocked()
	s.mu.Unlock()
	// Wait for an in-flight write; later writers see the collection is gone.
	c.writeMu.Lock()
	c.writeMu.Unlock() //nolint:staticcheck // SA2001: barrier.
	slog.InfoContext(ctx, "Collection unloaded", "collection", name)
	s.emit(ctx, Change{Kind: CollectionsChanged})
}

// materialize creates the marker file of the collection's folder and waits
// for the collection to load.
func (s *Store) materialize(ctx context.Context, name string) (*collection, error) {
	f, ok := s.Folder(name)
	if !ok {
		return nil, collectionNotFound(name)
	}
	marker := f.MarkerPath()
	_, statErr := os.Stat(marker)
	existed := statErr == nil
	if !existed {
		fh, err := os.OpenFile(marker, os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return nil, &Error{Kind: ErrCollectionNotFound, Collection: name, Err: err}
		}
		if err := fh.Close(); err != nil {
			return nil, &Error{Kind: ErrCollectionNotFound, Collection: name, Err: err}
		}
		slog.InfoContext(ctx, "Created marker", "collection", name, "path", marker)
	}
	// A watcher reports the new marker on its own. Otherwise, or when the
	// marker was already there, nothing else will trigger the load.
	if s.watcher == nil || existed {
		if err := s.beginLoad(ctx, f); err != nil {
			return nil, err
		}
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
	defer cancel()
	return s.awaitLoaded(wctx, name)
}

// awaitLoaded waits on lifecycle transitions until the collection is loaded.
// It fails with ErrCollectionNotFound when ctx expires first.
func (s *Store) awaitLoaded(ctx context.Context, name string) (*collection, error) {
	for {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return nil, notInitialized()
		}
		if c := s.collections[name]; c != nil && c.state == Loaded {
			s.mu.RUnlock()
			return c, nil
		}
		ch := s.transition
		s.mu.RUnlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, &Error{Kind: ErrCollectionNotFound, Collection: name, Err: ctx.Err()}
		}
	}
}
