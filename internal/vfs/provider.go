// Package vfs projects the schema store onto a file-protocol surface: each
// collection is a directory and each record a JSON file, addressed as
// "type://<collection>/<id>".
package vfs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/maruel/schemadb/internal/schema"
	"github.com/maruel/schemadb/internal/store"
)

// FileType tells files from directories.
type FileType int

// File types.
const (
	File      FileType = 1
	Directory FileType = 2
)

// FileStat describes a file or a directory.
type FileStat struct {
	Type  FileType  `json:"type"`
	Ctime time.Time `json:"ctime"`
	Mtime time.Time `json:"mtime"`
	Size  int64     `json:"size"`
}

// DirEntry is one entry of ReadDirectory.
type DirEntry struct {
	Name string   `json:"name"`
	Type FileType `json:"type"`
}

// ChangeType tags a FileChangeEvent.
type ChangeType int

// Change types.
const (
	Changed ChangeType = 1
	Created ChangeType = 2
	Deleted ChangeType = 3
)

func (c ChangeType) String() string {
	switch c {
	case Changed:
		return "changed"
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// FileChangeEvent is one entry of a change batch.
type FileChangeEvent struct {
	Type ChangeType
	URI  URI
}

// MarshalJSON renders the URI as a string.
func (e FileChangeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ChangeType `json:"type"`
		URI  string     `json:"uri"`
	}{e.Type, e.URI.String()})
}

// WriteOptions controls WriteFile.
type WriteOptions struct {
	Create    bool
	Overwrite bool
}

// Provider implements the file-protocol operations over a store.
type Provider struct {
	st    *store.Store
	queue *changeQueue

	mu        sync.Mutex
	listeners map[int]func([]FileChangeEvent)
	nextID    int
}

// New returns a Provider over st. Change events are batched over the debounce
// window; a non-positive value selects DefaultDebounce.
func New(st *store.Store, debounce time.Duration) *Provider {
	p := &Provider{st: st, listeners: make(map[int]func([]FileChangeEvent))}
	p.queue = newChangeQueue(debounce, p.broadcast)
	return p
}

// OnDidChangeFile registers fn to receive every change batch. The returned
// function unregisters it.
func (p *Provider) OnDidChangeFile(fn func([]FileChangeEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Watch accepts a subscription for uri. Every change is broadcast to every
// OnDidChangeFile listener regardless, so there is nothing to register.
func (p *Provider) Watch(uri URI) func() {
	return func() {}
}

// Flush delivers pending change events without waiting for the debounce
// window.
func (p *Provider) Flush() {
	p.queue.flush()
}

// Stat describes a record or a collection.
func (p *Provider) Stat(ctx context.Context, uri URI) (FileStat, error) {
	const op = "stat"
	if uri.IsRoot() {
		if store.IsNativeSchemaCollection(uri.Collection) {
			return FileStat{Type: Directory}, nil
		}
		f, ok := p.st.Folder(uri.Collection)
		if !ok {
			return FileStat{}, &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
		}
		fi, err := os.Stat(f.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = ErrFileNotFound
			}
			return FileStat{}, &PathError{Op: op, URI: uri, Err: err}
		}
		return FileStat{Type: Directory, Ctime: fi.ModTime(), Mtime: fi.ModTime(), Size: fi.Size()}, nil
	}
	rec, err := p.st.GetSchema(ctx, uri.Collection, uri.ID)
	if err != nil {
		return FileStat{}, translate(op, uri, err)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		return FileStat{}, &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return FileStat{}, &PathError{Op: op, URI: uri, Err: err}
	}
	return FileStat{
		Type:  File,
		Ctime: rec.CreatedAt.AsTime(),
		Mtime: rec.UpdatedAt.AsTime(),
		Size:  int64(len(b)),
	}, nil
}

// ReadDirectory lists the record IDs of a collection.
func (p *Provider) ReadDirectory(ctx context.Context, uri URI) ([]DirEntry, error) {
	const op = "readDirectory"
	if !uri.IsRoot() {
		return nil, &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
	}
	recs, err := p.st.GetAll(ctx, uri.Collection, schema.MatchAll{})
	if err != nil {
		return nil, translate(op, uri, err)
	}
	out := make([]DirEntry, len(recs))
	for i, r := range recs {
		out[i] = DirEntry{Name: r.ID, Type: File}
	}
	return out, nil
}

// ReadFile returns the record as indented JSON.
func (p *Provider) ReadFile(ctx context.Context, uri URI) ([]byte, error) {
	const op = "readFile"
	if uri.IsRoot() {
		return nil, &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
	}
	rec, err := p.st.GetSchema(ctx, uri.Collection, uri.ID)
	if err != nil {
		return nil, translate(op, uri, err)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, &PathError{Op: op, URI: uri, Err: err}
	}
	return b, nil
}

// WriteFile stores content, a JSON record, at uri.
//
// Without opts.Overwrite an existing record is left untouched and
// ErrFileNotFound is returned; without opts.Create a missing record yields
// ErrFileNotFound. An ID in content must match the URI; an absent one is
// taken from the URI. A label already used by another record yields
// ErrFileExists.
func (p *Provider) WriteFile(ctx context.Context, uri URI, content []byte, opts WriteOptions) error {
	const op = "writeFile"
	if uri.IsRoot() {
		return &PathError{Op: op, URI: uri, Err: ErrUnsupported}
	}
	existed, err := p.st.IsExisting(ctx, uri.Collection, schema.MatchByID(uri.ID))
	if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return translate(op, uri, err)
	}
	if existed && !opts.Overwrite {
		return &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
	}
	if !existed && !opts.Create {
		return &PathError{Op: op, URI: uri, Err: ErrFileNotFound}
	}
	rec := &schema.Record{}
	if err := json.Unmarshal(content, rec); err != nil {
		return &PathError{Op: op, URI: uri, Err: errors.Join(ErrInvalidContent, err)}
	}
	if rec.ID == "" {
		rec.ID = uri.ID
	} else if rec.ID != uri.ID {
		return &PathError{Op: op, URI: uri, Err: ErrInvalidContent}
	}
	if err := rec.Validate(); err != nil {
		return &PathError{Op: op, URI: uri, Err: errors.Join(ErrInvalidContent, err)}
	}
	if _, err := p.st.SetSchema(ctx, uri.Collection, rec, true, opts.Overwrite); err != nil {
		return translate(op, uri, err)
	}
	typ := Created
	if existed {
		typ = Changed
	}
	p.queue.push(FileChangeEvent{Type: typ, URI: uri})
	return nil
}

// CreateDirectory is not supported: collections are provisioned through
// their workspace folder.
func (p *Provider) CreateDirectory(ctx context.Context, uri URI) error {
	return &PathError{Op: "createDirectory", URI: uri, Err: ErrUnsupported}
}

// Delete is not supported.
func (p *Provider) Delete(ctx context.Context, uri URI) error {
	return &PathError{Op: "delete", URI: uri, Err: ErrUnsupported}
}

// Rename is not supported.
func (p *Provider) Rename(ctx context.Context, from, to URI) error {
	return &PathError{Op: "rename", URI: from, Err: ErrUnsupported}
}

// Copy is not supported.
func (p *Provider) Copy(ctx context.Context, from, to URI) error {
	return &PathError{Op: "copy", URI: from, Err: ErrUnsupported}
}

func (p *Provider) broadcast(batch []FileChangeEvent) {
	p.mu.Lock()
	ls := slices.Collect(maps.Values(p.listeners))
	p.mu.Unlock()
	slog.Debug("File changes", "count", len(batch))
	for _, fn := range ls {
		fn(slices.Clone(batch))
	}
}

// translate maps store errors to protocol errors.
func translate(op string, uri URI, err error) error {
	switch {
	case errors.Is(err, store.ErrCollectionNotFound),
		errors.Is(err, store.ErrRecordNotFound),
		errors.Is(err, store.ErrNotInitialized):
		err = ErrFileNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		err = ErrFileExists
	case errors.Is(err, store.ErrUnsupported):
		err = ErrUnsupported
	}
	return &PathError{Op: op, URI: uri, Err: err}
}
