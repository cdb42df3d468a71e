package server

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"time"
)

// Validatable is implemented by request types.
type Validatable interface {
	Validate() error
}

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error).
// Query parameters are extracted into struct fields tagged `query:"name"`.
//
// Example:
//
//	type TreeRequest struct {
//	    Path string `query:"path"`
//	}
//
//	func (s *Server) Tree(ctx context.Context, req *TreeRequest) (*TreeResponse, error)
func Wrap[In any, PtrIn interface {
	*In
	Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		input := new(In)
		if err := populateQueryParams(r, input); err != nil {
			respondError(ctx, w, BadRequest(err.Error()))
			return
		}
		if err := PtrIn(input).Validate(); err != nil {
			respondError(ctx, w, BadRequest(err.Error()))
			return
		}
		output, err := fn(ctx, PtrIn(input))
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, output)
	})
}

var durationType = reflect.TypeFor[time.Duration]()

// populateQueryParams sets fields tagged `query:"name"` from the URL query.
// Strings, bools, ints and durations are supported.
func populateQueryParams(r *http.Request, input any) error {
	elem := reflect.ValueOf(input).Elem()
	typ := elem.Type()
	query := r.URL.Query()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" || !query.Has(tag) {
			continue
		}
		v := query.Get(tag)
		f := elem.Field(i)
		switch {
		case field.Type == durationType:
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			f.SetInt(int64(d))
		case field.Type.Kind() == reflect.String:
			f.SetString(v)
		case field.Type.Kind() == reflect.Bool:
			// A bare flag ("?create") means true.
			b := true
			if v != "" {
				var err error
				if b, err = strconv.ParseBool(v); err != nil {
					return err
				}
			}
			f.SetBool(b)
		case field.Type.Kind() == reflect.Int:
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			f.SetInt(int64(n))
		}
	}
	return nil
}
