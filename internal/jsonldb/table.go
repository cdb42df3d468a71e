package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
)

var errIDRequired = errors.New("row ID is required")

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is implemented by types stored in a Table.
type Row[T any] interface {
	Cloner[T]
	// GetID returns the row's primary key. It must not be empty.
	GetID() string
	// Validate checks the row before it is persisted.
	Validate() error
	// GetCreated returns the creation timestamp assigned by the table.
	GetCreated() Time
	// SetTimestamps is called by the table on every write.
	SetTimestamps(created, updated Time)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string // Empty for in-memory tables.
	mu   sync.RWMutex

	rows []T
	byID map[string]int
}

// NewTable creates a new Table and loads all data from the file.
//
// A missing or empty file yields an empty table. The file is not created
// until the first mutation.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if path == "" {
		return nil, errors.New("table path is required")
	}
	table := &Table[T]{
		path: path,
		byID: make(map[string]int),
	}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

// NewMemoryTable creates a Table that is never persisted.
func NewMemoryTable[T Row[T]]() *Table[T] {
	return &Table[T]{byID: make(map[string]int)}
}

// Path returns the backing file path, or an empty string for in-memory tables.
func (t *Table[T]) Path() string {
	return t.path
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID.
func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i].Clone(), true
}

// All returns an iterator over clones of all rows, in insertion order.
//
// The read lock is held while iterating; do not mutate the table from the
// loop body.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Upsert inserts the row, or replaces the row with the same ID, and persists
// the table. It returns the stored row and whether a row with this ID already
// existed.
func (t *Table[T]) Upsert(row T) (T, bool, error) {
	var zero T
	if row.GetID() == "" {
		return zero, false, errIDRequired
	}
	if err := row.Validate(); err != nil {
		return zero, false, fmt.Errorf("invalid row: %w", err)
	}
	stored := row.Clone()

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := now()
	rows := make([]T, len(t.rows), len(t.rows)+1)
	copy(rows, t.rows)
	i, existed := t.byID[stored.GetID()]
	if existed {
		stored.SetTimestamps(t.rows[i].GetCreated(), ts)
		rows[i] = stored
	} else {
		stored.SetTimestamps(ts, ts)
		rows = append(rows, stored)
	}
	if err := t.persist(rows); err != nil {
		return zero, false, err
	}
	t.commit(rows)
	return stored.Clone(), existed, nil
}

// Delete removes every row for which match returns true and persists the
// table. It returns the number of rows removed.
func (t *Table[T]) Delete(match func(T) bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if !match(row) {
			rows = append(rows, row)
		}
	}
	removed := len(t.rows) - len(rows)
	if removed == 0 {
		return 0, nil
	}
	if err := t.persist(rows); err != nil {
		return 0, err
	}
	t.commit(rows)
	return removed, nil
}

// commit replaces the in-memory rows. Must be called with the write lock held.
func (t *Table[T]) commit(rows []T) {
	t.rows = rows
	t.byID = make(map[string]int, len(rows))
	for i, row := range rows {
		t.byID[row.GetID()] = i
	}
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.commit(nil)
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	seen := make(map[string]int)
	sawHeader := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !sawHeader {
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to unmarshal schema header in %s: %w", t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid schema header in %s: %w", t.path, err)
			}
			sawHeader = true
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		if row.GetID() == "" {
			return fmt.Errorf("row without ID in %s", t.path)
		}
		// Manual edits can duplicate IDs; the last row wins.
		if i, ok := seen[row.GetID()]; ok {
			rows[i] = row
			continue
		}
		seen[row.GetID()] = len(rows)
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	t.commit(rows)
	return nil
}

// persist rewrites the whole table file. It is a no-op for in-memory tables.
func (t *Table[T]) persist(rows []T) error {
	if t.path == "" {
		return nil
	}
	h, err := newSchemaHeader[T]()
	if err != nil {
		return err
	}

	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	writer := bufio.NewWriter(f)
	if err := writeLine(writer, h); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(writer, row); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

func writeLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}
