// Package server exposes the record projection and the tree index over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/maruel/schemadb/internal/server/ratelimit"
	"github.com/maruel/schemadb/internal/store"
	"github.com/maruel/schemadb/internal/vfs"
)

// maxBodyBytes bounds the size of a record written through PUT.
const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers.
type Server struct {
	st      *store.Store
	fs      *vfs.Provider
	events  *eventHub
	version string
}

// Options configures NewRouter.
type Options struct {
	Version string
	// Limiter throttles writes per client. Nil disables throttling.
	Limiter *ratelimit.Limiter
	// MaxWait bounds a long-poll of /api/events. Defaults to 30s.
	MaxWait time.Duration
}

// NewRouter creates and configures the HTTP router. The returned function
// releases the change subscription.
//
// Routes:
//   - GET /api/health
//   - GET /api/collections
//   - GET /api/tree?path=
//   - GET /api/events?wait=
//   - GET, HEAD, PUT, POST, DELETE, MOVE, COPY /fs/{collection}/{id}
//   - GET, HEAD, POST /fs/{collection}/
func NewRouter(st *store.Store, p *vfs.Provider, opts Options) (http.Handler, func()) {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	s := &Server{
		st:      st,
		fs:      p,
		events:  newEventHub(opts.MaxWait),
		version: opts.Version,
	}
	dispose := p.OnDidChangeFile(s.events.publish)

	mux := &http.ServeMux{}
	mux.Handle("GET /api/health", Wrap(s.Health))
	mux.Handle("GET /api/collections", Wrap(s.ListCollections))
	mux.Handle("GET /api/tree", Wrap(s.Tree))
	mux.Handle("GET /api/events", Wrap(s.Events))
	mux.HandleFunc("/fs/{collection}/{$}", s.serveCollection)
	mux.HandleFunc("/fs/{collection}/{id}", s.serveRecord)

	h := ratelimit.Writes(opts.Limiter, func(w http.ResponseWriter, r *http.Request, res ratelimit.Result) {
		respondError(r.Context(), w, NewAPIError(http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded").
			WithDetail("retry_after", int(res.RetryAfter.Seconds())))
	}, mux)
	return h, dispose
}

// trackedPaths maps "collection/label" to record IDs over every loaded
// collection.
func (s *Server) trackedPaths() map[string]string {
	ctx := context.Background()
	out := map[string]string{}
	names, err := s.st.GetAllSchemaCollections()
	if err != nil {
		return out
	}
	for _, name := range names {
		recs, err := s.st.GetAll(ctx, name, schemaAll)
		if err != nil {
			continue
		}
		for _, r := range recs {
			out[name+"/"+r.Label] = r.ID
		}
	}
	return out
}
