package store

import (
	"errors"
	"fmt"
)

// Error kinds returned by the Store. Test with errors.Is.
var (
	ErrNotInitialized     = errors.New("schema store is not initialised")
	ErrCollectionNotFound = errors.New("collection does not exist")
	ErrRecordNotFound     = errors.New("record does not exist")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrUnsupported        = errors.New("operation not supported")
)

var (
	errAlreadyConstructed = errors.New("schema store already constructed")
	errRecordRequired     = errors.New("record is required")
)

// Error is the error returned by Store operations. Kind is one of the Err*
// sentinels above.
type Error struct {
	Kind       error
	Collection string
	Subject    string // Record ID or label, when relevant.
	Err        error  // Underlying cause, if any.
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Subject != "" {
		msg = fmt.Sprintf("%q: %s", e.Subject, msg)
	}
	if e.Collection != "" {
		msg += fmt.Sprintf(" in collection %q", e.Collection)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func notInitialized() error {
	return &Error{Kind: ErrNotInitialized}
}

func collectionNotFound(collection string) error {
	return &Error{Kind: ErrCollectionNotFound, Collection: collection}
}

func isKind(err error, kind error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
