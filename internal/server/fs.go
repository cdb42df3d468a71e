package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/maruel/schemadb/internal/vfs"
)

// serveCollection handles /fs/{collection}/: GET lists records, HEAD stats the
// collection, POST (create directory) is refused.
func (s *Server) serveCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uri := vfs.URI{Collection: r.PathValue("collection")}
	switch r.Method {
	case http.MethodGet:
		entries, err := s.fs.ReadDirectory(ctx, uri)
		if err != nil {
			respondError(ctx, w, fromVFS(err))
			return
		}
		respondJSON(ctx, w, http.StatusOK, entries)
	case http.MethodHead:
		s.stat(w, r, uri)
	case http.MethodPost:
		respondError(ctx, w, fromVFS(s.fs.CreateDirectory(ctx, uri)))
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		respondError(ctx, w, NewAPIError(http.StatusMethodNotAllowed, ErrCodeNotSupported, "method not allowed"))
	}
}

// serveRecord handles /fs/{collection}/{id}.
//
// PUT accepts the boolean query parameters "create" and "overwrite". MOVE and
// COPY name their target in the Destination header.
func (s *Server) serveRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uri := vfs.URI{Collection: r.PathValue("collection"), ID: r.PathValue("id")}
	switch r.Method {
	case http.MethodGet:
		b, err := s.fs.ReadFile(ctx, uri)
		if err != nil {
			respondError(ctx, w, fromVFS(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		_, _ = w.Write(b)
	case http.MethodHead:
		s.stat(w, r, uri)
	case http.MethodPut:
		var opts struct {
			Create    bool `query:"create"`
			Overwrite bool `query:"overwrite"`
		}
		if err := populateQueryParams(r, &opts); err != nil {
			respondError(ctx, w, BadRequest(err.Error()))
			return
		}
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respondError(ctx, w, BadRequest("failed to read body").Wrap(err))
			return
		}
		if err := s.fs.WriteFile(ctx, uri, b, vfs.WriteOptions{Create: opts.Create, Overwrite: opts.Overwrite}); err != nil {
			respondError(ctx, w, fromVFS(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		respondError(ctx, w, fromVFS(s.fs.Delete(ctx, uri)))
	case "MOVE":
		respondError(ctx, w, fromVFS(s.fs.Rename(ctx, uri, destination(r))))
	case "COPY":
		respondError(ctx, w, fromVFS(s.fs.Copy(ctx, uri, destination(r))))
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		respondError(ctx, w, NewAPIError(http.StatusMethodNotAllowed, ErrCodeNotSupported, "method not allowed"))
	}
}

// stat answers HEAD with the file metadata in headers.
func (s *Server) stat(w http.ResponseWriter, r *http.Request, uri vfs.URI) {
	st, err := s.fs.Stat(r.Context(), uri)
	if err != nil {
		w.WriteHeader(fromVFS(err).StatusCode())
		return
	}
	h := w.Header()
	h.Set("Content-Length", strconv.FormatInt(st.Size, 10))
	if !st.Mtime.IsZero() {
		h.Set("Last-Modified", st.Mtime.UTC().Format(http.TimeFormat))
	}
	if st.Type == vfs.Directory {
		h.Set("X-File-Type", "directory")
	} else {
		h.Set("X-File-Type", "file")
	}
	w.WriteHeader(http.StatusOK)
}

// destination parses the Destination header. An invalid value yields the zero
// URI; the operation is refused regardless.
func destination(r *http.Request) vfs.URI {
	u, _ := vfs.ParseURI(r.Header.Get("Destination"))
	return u
}
