package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maruel/schemadb/internal/schema"
)

// Count returns the number of records of a collection matching f.
func (s *Store) Count(ctx context.Context, collection string, f schema.Filter) (int, error) {
	c, err := s.loaded(collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for r := range c.table.All() {
		if schema.Matches(f, r) {
			n++
		}
	}
	return n, nil
}

// GetOne returns the first record of a collection matching f.
func (s *Store) GetOne(ctx context.Context, collection string, f schema.Filter) (*schema.Record, error) {
	c, err := s.loaded(collection)
	if err != nil {
		return nil, err
	}
	if r := c.first(f); r != nil {
		return r, nil
	}
	return nil, &Error{Kind: ErrRecordNotFound, Collection: collection, Subject: filterSubject(f)}
}

// GetAll returns every record of a collection matching f, in storage order.
func (s *Store) GetAll(ctx context.Context, collection string, f schema.Filter) ([]*schema.Record, error) {
	c, err := s.loaded(collection)
	if err != nil {
		return nil, err
	}
	var out []*schema.Record
	for r := range c.table.All() {
		if schema.Matches(f, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetSchema returns the record with the given id.
func (s *Store) GetSchema(ctx context.Context, collection, id string) (*schema.Record, error) {
	return s.GetOne(ctx, collection, schema.MatchByID(id))
}

// GetSchemaByLabel returns the record with the given label.
func (s *Store) GetSchemaByLabel(ctx context.Context, collection, label string) (*schema.Record, error) {
	return s.GetOne(ctx, collection, schema.MatchByLabel(label))
}

// IsExisting reports whether any record of a collection matches f.
func (s *Store) IsExisting(ctx context.Context, collection string, f schema.Filter) (bool, error) {
	c, err := s.loaded(collection)
	if err != nil {
		return false, err
	}
	return c.first(f) != nil, nil
}

// SetSchema is the central write path.
//
// When the collection is not loaded and create is true, the marker file of
// the collection's workspace folder is created and SetSchema waits, up to
// Options.LoadTimeout, for the collection to load. An existing record (same ID
// or same label) is only replaced when force is true; a missing one is only
// inserted when create is true. With create set and an empty ID, a fresh ID
// is assigned.
//
// The stored record, with its storage timestamps, is returned.
func (s *Store) SetSchema(ctx context.Context, collection string, rec *schema.Record, create, force bool) (*schema.Record, error) {
	if rec == nil {
		return nil, errRecordRequired
	}
	c, err := s.loaded(collection)
	if err != nil {
		if !create || !isKind(err, ErrCollectionNotFound) {
			return nil, err
		}
		if c, err = s.materialize(ctx, collection); err != nil {
			return nil, err
		}
	}
	rec = rec.Clone()
	if rec.ID == "" && create {
		rec.ID = schema.NewID()
	}

	if err := s.lockWriter(c); err != nil {
		return nil, err
	}
	defer c.writeMu.Unlock()
	has := c.first(schema.MatchEither{ID: rec.ID, Label: rec.Label}) != nil
	if has && !force {
		return nil, &Error{Kind: ErrAlreadyExists, Collection: collection, Subject: rec.Label}
	}
	if !has && !create {
		return nil, &Error{Kind: ErrRecordNotFound, Collection: collection, Subject: rec.ID}
	}
	stored, existed, err := c.table.Upsert(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to write record %q in %q: %w", rec.Label, collection, err)
	}
	slog.DebugContext(ctx, "Record written", "collection", collection, "id", stored.ID, "label", stored.Label, "updated", existed)
	s.emit(ctx, Change{Kind: RecordsChanged, Collection: collection})
	return stored, nil
}

// CreateEmptySchema creates a record with only a label and a fresh ID, and
// returns the ID.
func (s *Store) CreateEmptySchema(ctx context.Context, collection, label string) (string, error) {
	rec, err := s.SetSchema(ctx, collection, &schema.Record{ID: schema.NewID(), Label: label}, true, false)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// RemoveSchema deletes every record whose ID or label is idOrLabel and
// returns how many were removed. Removing nothing is not an error.
//
// Native collections are read-only.
func (s *Store) RemoveSchema(ctx context.Context, collection, idOrLabel string) (int, error) {
	c, err := s.loaded(collection)
	if err != nil {
		return 0, err
	}
	if c.native {
		return 0, &Error{Kind: ErrUnsupported, Collection: collection, Subject: idOrLabel}
	}
	f := schema.MatchIDOrLabel(idOrLabel)
	if err := s.lockWriter(c); err != nil {
		return 0, err
	}
	defer c.writeMu.Unlock()
	n, err := c.table.Delete(func(r *schema.Record) bool { return schema.Matches(f, r) })
	if err != nil {
		return 0, fmt.Errorf("failed to remove %q from %q: %w", idOrLabel, collection, err)
	}
	if n != 0 {
		slog.DebugContext(ctx, "Records removed", "collection", collection, "match", idOrLabel, "count", n)
		s.emit(ctx, Change{Kind: RecordsChanged, Collection: collection})
	}
	return n, nil
}

// lockWriter takes the write lock of c, failing if c was unloaded since it
// was looked up so a write never recreates a deleted marker file.
func (s *Store) lockWriter(c *collection) error {
	c.writeMu.Lock()
	s.mu.RLock()
	current := s.collections[c.name] == c
	s.mu.RUnlock()
	if !current {
		c.writeMu.Unlock()
		return collectionNotFound(c.name)
	}
	return nil
}

func (c *collection) first(f schema.Filter) *schema.Record {
	for r := range c.table.All() {
		if schema.Matches(f, r) {
			return r
		}
	}
	return nil
}

func filterSubject(f schema.Filter) string {
	switch f := f.(type) {
	case schema.MatchByID:
		return string(f)
	case schema.MatchByLabel:
		return string(f)
	case schema.MatchEither:
		if f.ID != "" {
			return f.ID
		}
		return f.Label
	}
	return ""
}
