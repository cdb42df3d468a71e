// Handles the schema header line and reflection-based schema generation.

package jsonldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

var errSchemaVersionRequired = errors.New("schema version is required")

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

// schemaHeader is the first row of a JSONL data file containing the format
// version and the JSON schema of the rows that follow.
type schemaHeader struct {
	Version string          `json:"version"`
	Schema  json.RawMessage `json:"schema,omitempty"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	if h.Version != currentVersion {
		return fmt.Errorf("unsupported table format version %q", h.Version)
	}
	return nil
}

// SchemaOf returns the JSON schema describing rows of type T.
//
// T must be a struct or a pointer to a struct.
func SchemaOf[T any]() (*jsonschema.Schema, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return r.ReflectFromType(t), nil
}

// newSchemaHeader builds the header written on line 1 of the table file.
func newSchemaHeader[T any]() (*schemaHeader, error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return &schemaHeader{Version: currentVersion, Schema: raw}, nil
}
