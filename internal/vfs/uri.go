package vfs

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the URI scheme of the projection.
const Scheme = "type"

// Errors returned by the Provider, wrapped in a *PathError.
var (
	ErrFileNotFound   = errors.New("file not found")
	ErrFileExists     = errors.New("file exists")
	ErrUnsupported    = errors.New("operation not supported")
	ErrInvalidURI     = errors.New("invalid uri")
	ErrInvalidContent = errors.New("invalid content")
)

// PathError records an error and the operation and URI that caused it.
type PathError struct {
	Op  string
	URI URI
	Err error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.URI.String() + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// URI addresses a collection (ID empty) or one record.
type URI struct {
	Collection string
	ID         string
}

// ParseURI parses "type://<collection>/<id>". A missing or empty path
// addresses the collection root.
func ParseURI(s string) (URI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, fmt.Errorf("%w %q: %w", ErrInvalidURI, s, err)
	}
	if u.Scheme != Scheme {
		return URI{}, fmt.Errorf("%w %q: scheme must be %q", ErrInvalidURI, s, Scheme)
	}
	if u.Host == "" {
		return URI{}, fmt.Errorf("%w %q: missing collection", ErrInvalidURI, s)
	}
	id := strings.TrimPrefix(u.Path, "/")
	if strings.Contains(id, "/") {
		return URI{}, fmt.Errorf("%w %q: nested path", ErrInvalidURI, s)
	}
	return URI{Collection: u.Host, ID: id}, nil
}

// IsRoot reports whether the URI addresses a collection.
func (u URI) IsRoot() bool {
	return u.ID == ""
}

func (u URI) String() string {
	return Scheme + "://" + u.Collection + "/" + u.ID
}
