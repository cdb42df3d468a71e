// Package schema defines schema-definition records and the native catalogs.
//
// A [Record] describes a type of data: a label unique within its collection,
// an optional parent type ("extends") and a list of [Field] descriptors whose
// Ref points at another record by qualified name (see [QualifiedName]).
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maruel/ksid"
	"github.com/maruel/schemadb/internal/jsonldb"
)

var (
	errIDRequired    = errors.New("id is required")
	errLabelRequired = errors.New("label is required")
)

// Record is one schema definition.
type Record struct {
	ID          string       `json:"_id" jsonschema:"description=Immutable identifier, unique within the collection"`
	Label       string       `json:"label" jsonschema:"description=Name of the type, unique within the collection"`
	Description string       `json:"description,omitempty"`
	Extends     string       `json:"extends,omitempty" jsonschema:"description=Qualified name of the parent type"`
	Fields      []Field      `json:"fields,omitempty"`
	CreatedAt   jsonldb.Time `json:"createdAt,omitempty" jsonschema:"description=Unix milliseconds, assigned by storage"`
	UpdatedAt   jsonldb.Time `json:"updatedAt,omitempty" jsonschema:"description=Unix milliseconds, assigned by storage"`
}

// Field describes one property of a Record.
type Field struct {
	Key        string   `json:"key"`
	Label      string   `json:"label,omitempty"`
	Ref        string   `json:"ref,omitempty" jsonschema:"description=Qualified name of the field type"`
	IsRequired bool     `json:"isRequired,omitempty"`
	Default    any      `json:"default,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	IsArray    bool     `json:"isArray,omitempty"`
}

// NewID returns a fresh random record ID.
func NewID() string {
	return ksid.NewID().String()
}

// Clone implements jsonldb.Cloner.
func (r *Record) Clone() *Record {
	c := *r
	if r.Fields != nil {
		c.Fields = make([]Field, len(r.Fields))
		for i, f := range r.Fields {
			c.Fields[i] = f.clone()
		}
	}
	return &c
}

// GetID implements jsonldb.Row.
func (r *Record) GetID() string {
	return r.ID
}

// GetCreated implements jsonldb.Row.
func (r *Record) GetCreated() jsonldb.Time {
	return r.CreatedAt
}

// SetTimestamps implements jsonldb.Row.
func (r *Record) SetTimestamps(created, updated jsonldb.Time) {
	r.CreatedAt = created
	r.UpdatedAt = updated
}

// Validate implements jsonldb.Row.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errIDRequired
	}
	if strings.TrimSpace(r.Label) == "" {
		return errLabelRequired
	}
	seen := make(map[string]struct{}, len(r.Fields))
	for i := range r.Fields {
		f := &r.Fields[i]
		if f.Key == "" {
			return fmt.Errorf("field %d: key is required", i)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("field %q: duplicate key", f.Key)
		}
		seen[f.Key] = struct{}{}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("field %q: min %g is greater than max %g", f.Key, *f.Min, *f.Max)
		}
	}
	return nil
}

// Summary renders a short markdown description of the record, suitable for
// tooltips: label, ID, description and one line per field.
func (r *Record) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** *(%s)*\n\n", r.Label, r.ID)
	b.WriteString(r.Description)
	if len(r.Fields) != 0 {
		b.WriteString("\n***\n")
		for i, f := range r.Fields {
			if i != 0 {
				b.WriteByte('\n')
			}
			name := f.Label
			if name == "" {
				name = f.Key
			}
			typ := f.Ref
			if f.IsArray {
				typ += "[]"
			}
			fmt.Fprintf(&b, "- %s *(%s)*", name, typ)
		}
	}
	return b.String()
}

func (f Field) clone() Field {
	if f.Min != nil {
		v := *f.Min
		f.Min = &v
	}
	if f.Max != nil {
		v := *f.Max
		f.Max = &v
	}
	return f
}

// QualifiedName returns the name used to reference a record from another
// collection, e.g. "Atomic.string".
func QualifiedName(collection, label string) string {
	return collection + "." + label
}

// ParseQualifiedName splits a qualified name at its first dot.
func ParseQualifiedName(name string) (collection, label string, ok bool) {
	collection, label, ok = strings.Cut(name, ".")
	if !ok || collection == "" || label == "" {
		return "", "", false
	}
	return collection, label, true
}
