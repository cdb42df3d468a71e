// Manages the process-wide set of schema collections.

// Package store owns every schema collection of the process: the native
// collections seeded at start and the workspace collections whose lifecycle
// follows a marker file in each workspace folder.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/schemadb/internal/jsonldb"
	"github.com/maruel/schemadb/internal/schema"
)

// MarkerFileName is the name of the file, at the root of a workspace folder,
// whose presence makes the folder's collection loadable. Once loaded, it holds
// the collection's records.
const MarkerFileName = ".types"

const defaultLoadTimeout = 2 * time.Second

// State is the lifecycle state of a collection.
type State int

// Collection states.
const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Folder is a workspace root. Its Name is the name of its collection.
type Folder struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// MarkerPath returns the path of the folder's marker file.
func (f Folder) MarkerPath() string {
	return filepath.Join(f.Path, MarkerFileName)
}

// Watcher reports marker file creation and deletion inside watched folders
// by calling Store.HandleEvent.
type Watcher interface {
	Watch(f Folder) error
	Unwatch(f Folder) error
}

// ChangeKind tells which part of the store changed.
type ChangeKind int

// Change kinds.
const (
	CollectionsChanged ChangeKind = iota + 1
	RecordsChanged
)

func (k ChangeKind) String() string {
	switch k {
	case CollectionsChanged:
		return "collections"
	case RecordsChanged:
		return "records"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is delivered to subscribers after every successful mutation or
// lifecycle transition.
type Change struct {
	Kind       ChangeKind
	Collection string // Set for RecordsChanged.
}

// Options configures a Store.
type Options struct {
	// Watcher is notified of folders to watch. When nil, the store loads a
	// collection itself right after creating its marker file.
	Watcher Watcher
	// LoadTimeout bounds how long SetSchema waits for a freshly created
	// collection to become loaded. Defaults to 2s.
	LoadTimeout time.Duration
	// OpenTable opens the storage handle of a workspace collection. Defaults
	// to jsonldb.NewTable.
	OpenTable func(path string) (*jsonldb.Table[*schema.Record], error)
}

// Store is the process-wide owner of all collections.
//
// Exactly one Store may exist at a time; see New and Instance.
type Store struct {
	watcher     Watcher
	loadTimeout time.Duration
	openTable   func(path string) (*jsonldb.Table[*schema.Record], error)

	mu          sync.RWMutex
	closed      bool
	collections map[string]*collection
	folders     map[string]Folder
	transition  chan struct{} // Closed and replaced on every lifecycle transition.

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// collection is one loaded or loading collection.
type collection struct {
	name   string
	native bool
	folder Folder
	state  State // Protected by Store.mu.
	table  *jsonldb.Table[*schema.Record]

	// writeMu serializes the existence probe and the write of SetSchema so
	// concurrent creators cannot both pass the probe.
	writeMu sync.Mutex
}

var instance atomic.Pointer[Store]

// New constructs the Store and seeds the native collections.
//
// It fails if a Store already exists; Close the previous one first.
func New(opts Options) (*Store, error) {
	s := &Store{
		watcher:     opts.Watcher,
		loadTimeout: opts.LoadTimeout,
		openTable:   opts.OpenTable,
		collections: make(map[string]*collection),
		folders:     make(map[string]Folder),
		transition:  make(chan struct{}),
		subs:        make(map[int]func(Change)),
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = defaultLoadTimeout
	}
	if s.openTable == nil {
		s.openTable = jsonldb.NewTable[*schema.Record]
	}
	if !instance.CompareAndSwap(nil, s) {
		return nil, errAlreadyConstructed
	}
	if err := s.seedNative(); err != nil {
		instance.CompareAndSwap(s, nil)
		return nil, err
	}
	return s, nil
}

// Instance returns the Store constructed by New.
func Instance() (*Store, error) {
	s := instance.Load()
	if s == nil {
		return nil, notInitialized()
	}
	return s, nil
}

// Close drops every collection handle and releases the singleton. Underlying
// files are untouched. Every later call on s fails with ErrNotInitialized.
func (s *Store) Close() error {
	if s == nil {
		return notInitialized()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.collections = make(map[string]*collection)
	folders := slices.Collect(maps.Values(s.folders))
	s.folders = make(map[string]Folder)
	s.notifyTransitionLocked()
	s.mu.Unlock()

	if s.watcher != nil {
		for _, f := range folders {
			_ = s.watcher.Unwatch(f)
		}
	}
	instance.CompareAndSwap(s, nil)
	return nil
}

// seedNative loads the native collections. Native record IDs derive from
// their labels so seeding is idempotent.
func (s *Store) seedNative() error {
	for _, name := range schema.NativeCollections() {
		s.mu.Lock()
		c := s.collections[name]
		if c == nil {
			c = &collection{
				name:   name,
				native: true,
				state:  Loaded,
				table:  jsonldb.NewMemoryTable[*schema.Record](),
			}
			s.collections[name] = c
		}
		s.mu.Unlock()
		for _, r := range schema.NativeRecords(name) {
			if _, _, err := c.table.Upsert(r); err != nil {
				return fmt.Errorf("failed to seed native schema %s: %w", schema.QualifiedName(name, r.Label), err)
			}
		}
	}
	return nil
}

// IsNativeSchemaCollection reports whether name is a built-in collection.
func IsNativeSchemaCollection(name string) bool {
	return schema.IsNative(name)
}

// GetAllSchemaCollections returns the sorted names of every loaded collection.
func (s *Store) GetAllSchemaCollections() ([]string, error) {
	if s == nil {
		return nil, notInitialized()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, notInitialized()
	}
	var names []string
	for name, c := range s.collections {
		if c.state == Loaded {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// ListCollectionNames returns the sorted union of loaded collections and
// registered workspace folders. A folder without a marker file is listed so
// that records can be created in it.
func (s *Store) ListCollectionNames() ([]string, error) {
	if s == nil {
		return nil, notInitialized()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, notInitialized()
	}
	set := make(map[string]struct{}, len(s.collections)+len(s.folders))
	for name, c := range s.collections {
		if c.state == Loaded {
			set[name] = struct{}{}
		}
	}
	for name := range s.folders {
		set[name] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// Folder returns the registered workspace folder of a collection.
func (s *Store) Folder(name string) (Folder, bool) {
	if s == nil {
		return Folder{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.folders[name]
	return f, ok
}

// State returns the lifecycle state of a collection.
func (s *Store) State(name string) State {
	if s == nil {
		return Unloaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.collections[name]; c != nil {
		return c.state
	}
	return Unloaded
}

// Subscribe registers fn to be called after every change. fn is called
// synchronously from the mutating goroutine and must not block. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(ctx context.Context, c Change) {
	s.subMu.Lock()
	subs := slices.Collect(maps.Values(s.subs))
	s.subMu.Unlock()
	slog.DebugContext(ctx, "Store changed", "kind", c.Kind, "collection", c.Collection)
	for _, fn := range subs {
		fn(c)
	}
}

// loaded returns the collection if it is loaded.
func (s *Store) loaded(name string) (*collection, error) {
	if s == nil {
		return nil, notInitialized()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, notInitialized()
	}
	c := s.collections[name]
	if c == nil || c.state != Loaded {
		return nil, collectionNotFound(name)
	}
	return c, nil
}

// notifyTransitionLocked wakes every waiter of awaitLoaded. Must be called with
// mu held for writing.
func (s *Store) notifyTransitionLocked() {
	close(s.transition)
	s.transition = make(chan struct{})
}
