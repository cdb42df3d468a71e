// Package jsonldb provides a generic, concurrent-safe, JSONL-backed row store.
//
// # Overview
//
// The package centers around [Table], a container that stores rows keyed by a
// string ID in a JSONL (JSON Lines) file with full in-memory caching for fast
// reads. A Table opened with [NewMemoryTable] has no backing file and only lives
// in memory.
//
// # Concurrency
//
// A Table accepts one mutation at a time: [Table.Upsert] and [Table.Delete] hold
// the write lock for the entire read-modify-persist operation, so mutations
// issued against the same Table complete in issuance order. Distinct tables are
// independent.
//
// # Timestamps
//
// Creation and update times are assigned by the Table, never by the caller. An
// upsert over an existing row keeps its creation time.
//
// # File Format
//
// JSONL files with line 1 as schema header (format version and the JSON schema
// of the row type), subsequent lines as JSON rows. An empty file is a valid,
// empty table; the header is written on the first mutation.
package jsonldb
