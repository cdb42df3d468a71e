package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/maruel/schemadb/internal/schema"
	"github.com/maruel/schemadb/internal/server/ratelimit"
	"github.com/maruel/schemadb/internal/store"
	"github.com/maruel/schemadb/internal/vfs"
)

// newTestServer returns a router over a store with one loaded workspace
// collection named "ws".
func newTestServer(t *testing.T, opts Options) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	f := store.Folder{Name: "ws", Path: t.TempDir()}
	if err := os.WriteFile(f.MarkerPath(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := st.AddFolder(ctx, f); err != nil {
		t.Fatal(err)
	}
	if err := st.WaitLoaded(ctx, "ws"); err != nil {
		t.Fatal(err)
	}
	if opts.Version == "" {
		opts.Version = "test"
	}
	h, dispose := NewRouter(st, vfs.New(st, 10*time.Millisecond), opts)
	t.Cleanup(dispose)
	return h, st
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAPI(t *testing.T) {
	h, st := newTestServer(t, Options{})

	t.Run("health", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/health", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		got := decode[HealthResponse](t, rr)
		if got.Status != "ok" || got.Version != "test" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("collections", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/collections", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		got := decode[ListCollectionsResponse](t, rr)
		want := []Collection{
			{Name: "Atomic", Native: true, State: "loaded"},
			{Name: "Foundry", Native: true, State: "loaded"},
			{Name: "ws", State: "loaded"},
		}
		if len(got.Collections) != len(want) {
			t.Fatalf("got %+v", got.Collections)
		}
		for i, c := range got.Collections {
			w := want[i]
			if c.Name != w.Name || c.Native != w.Native || c.State != w.State {
				t.Errorf("collection %d = %+v, want %+v", i, c, w)
			}
		}
		if got.Collections[2].Path == "" {
			t.Error("workspace path missing")
		}
	})

	t.Run("tree", func(t *testing.T) {
		if _, err := st.CreateEmptySchema(t.Context(), "ws", "Person"); err != nil {
			t.Fatal(err)
		}
		rr := do(h, http.MethodGet, "/api/tree", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		root := decode[TreeResponse](t, rr)
		var names []string
		for _, n := range root.Nodes {
			names = append(names, n.Name)
			if !n.Expandable {
				t.Errorf("%s is not expandable", n.Name)
			}
		}
		if strings.Join(names, ",") != "Atomic,Foundry,ws" {
			t.Errorf("root = %v", names)
		}

		rr = do(h, http.MethodGet, "/api/tree?path=ws", "")
		got := decode[TreeResponse](t, rr)
		if got.Parent != "" || len(got.Nodes) != 1 {
			t.Fatalf("got %+v", got)
		}
		n := got.Nodes[0]
		if n.Name != "Person" || n.Path != "ws/Person" || n.Expandable || n.ID == "" {
			t.Errorf("node = %+v", n)
		}
		if !strings.Contains(n.Summary, "**Person**") {
			t.Errorf("summary = %q", n.Summary)
		}
	})

	t.Run("tree leaves sharing a prefix", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/tree?path=Foundry", "")
		got := decode[TreeResponse](t, rr)
		if len(got.Nodes) == 0 {
			t.Fatal("no nodes")
		}
		for _, n := range got.Nodes {
			if n.Expandable || n.ID == "" {
				t.Errorf("node = %+v", n.Node)
			}
		}
	})

	t.Run("bad query", func(t *testing.T) {
		for _, target := range []string{"/api/events?wait=forever", "/api/events?wait=-1s"} {
			rr := do(h, http.MethodGet, target, "")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("%s: expected status 400, got %d", target, rr.Code)
			}
			if e := decode[errorResponse](t, rr); e.Error.Code != ErrCodeValidationFailed {
				t.Errorf("%s: code = %s", target, e.Error.Code)
			}
		}
	})
}

func TestFS(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	t.Run("native record", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/fs/Atomic/"+schema.NativeID("string"), "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec := decode[schema.Record](t, rr); rec.Label != "string" {
			t.Errorf("label = %q", rec.Label)
		}
	})

	t.Run("create then overwrite", func(t *testing.T) {
		rr := do(h, http.MethodPut, "/fs/ws/a1?create", `{"label":"Address"}`)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("create: expected status 204, got %d: %s", rr.Code, rr.Body)
		}
		rr = do(h, http.MethodGet, "/fs/ws/a1", "")
		rec := decode[schema.Record](t, rr)
		if rec.ID != "a1" || rec.Label != "Address" || rec.CreatedAt == 0 {
			t.Errorf("record = %+v", rec)
		}

		// Without overwrite the record is left untouched.
		rr = do(h, http.MethodPut, "/fs/ws/a1?create", `{"label":"Other"}`)
		if rr.Code != http.StatusNotFound {
			t.Errorf("no overwrite: expected status 404, got %d", rr.Code)
		}
		rr = do(h, http.MethodPut, "/fs/ws/a1?overwrite=true", `{"label":"Address","description":"Postal"}`)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("overwrite: expected status 204, got %d: %s", rr.Code, rr.Body)
		}
		rr = do(h, http.MethodGet, "/fs/ws/a1", "")
		if rec := decode[schema.Record](t, rr); rec.Description != "Postal" {
			t.Errorf("record = %+v", rec)
		}

		rr = do(h, http.MethodGet, "/fs/ws/", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("list: expected status 200, got %d", rr.Code)
		}
		entries := decode[[]vfs.DirEntry](t, rr)
		if len(entries) != 1 || entries[0].Name != "a1" || entries[0].Type != vfs.File {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("head", func(t *testing.T) {
		rr := do(h, http.MethodHead, "/fs/ws/a1", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rr.Header().Get("X-File-Type") != "file" || rr.Header().Get("Last-Modified") == "" {
			t.Errorf("headers = %v", rr.Header())
		}
		rr = do(h, http.MethodHead, "/fs/ws/", "")
		if rr.Code != http.StatusOK || rr.Header().Get("X-File-Type") != "directory" {
			t.Errorf("collection: %d %v", rr.Code, rr.Header())
		}
		rr = do(h, http.MethodHead, "/fs/ws/missing", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("missing: expected status 404, got %d", rr.Code)
		}
	})

	errs := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   ErrorCode
	}{
		{"missing record", http.MethodGet, "/fs/ws/nope", "", http.StatusNotFound, ErrCodeNotFound},
		{"unknown collection", http.MethodGet, "/fs/nope/x", "", http.StatusNotFound, ErrCodeNotFound},
		{"write without create", http.MethodPut, "/fs/ws/b1", `{"label":"B"}`, http.StatusNotFound, ErrCodeNotFound},
		{"duplicate label", http.MethodPut, "/fs/ws/b2?create", `{"label":"Address"}`, http.StatusConflict, ErrCodeConflict},
		{"invalid JSON", http.MethodPut, "/fs/ws/b3?create", `{`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"missing label", http.MethodPut, "/fs/ws/b4?create", `{}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"ID mismatch", http.MethodPut, "/fs/ws/b5?create", `{"_id":"other","label":"B"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"bad flag", http.MethodPut, "/fs/ws/b6?create=maybe", `{"label":"B"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"delete", http.MethodDelete, "/fs/ws/a1", "", http.StatusMethodNotAllowed, ErrCodeNotSupported},
		{"move", "MOVE", "/fs/ws/a1", "", http.StatusMethodNotAllowed, ErrCodeNotSupported},
		{"copy", "COPY", "/fs/ws/a1", "", http.StatusMethodNotAllowed, ErrCodeNotSupported},
		{"mkdir", http.MethodPost, "/fs/ws/", "", http.StatusMethodNotAllowed, ErrCodeNotSupported},
		{"unknown method", http.MethodPatch, "/fs/ws/a1", "", http.StatusMethodNotAllowed, ErrCodeNotSupported},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body)
			}
			if e := decode[errorResponse](t, rr); e.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", e.Error.Code, tt.code)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	t.Run("long poll receives a batch", func(t *testing.T) {
		h, _ := newTestServer(t, Options{MaxWait: 10 * time.Second})
		srv := httptest.NewServer(h)
		defer srv.Close()

		type result struct {
			resp EventsResponse
			err  error
		}
		done := make(chan result, 1)
		go func() {
			var res result
			resp, err := http.Get(srv.URL + "/api/events?wait=5s")
			if err != nil {
				res.err = err
			} else {
				defer resp.Body.Close()
				res.err = json.NewDecoder(resp.Body).Decode(&res.resp)
			}
			done <- res
		}()

		// Keep writing until the poll returns so the test does not depend on
		// when the waiter registers.
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		timeout := time.After(5 * time.Second)
		for i := 0; ; i++ {
			select {
			case res := <-done:
				if res.err != nil {
					t.Fatal(res.err)
				}
				if len(res.resp.Events) == 0 {
					t.Fatal("no events")
				}
				return
			case <-tick.C:
				rr := do(h, http.MethodPut, fmt.Sprintf("/fs/ws/r%d?create", i), fmt.Sprintf(`{"label":"R%d"}`, i))
				if rr.Code != http.StatusNoContent {
					t.Fatalf("PUT: expected status 204, got %d: %s", rr.Code, rr.Body)
				}
			case <-timeout:
				t.Fatal("poll did not return")
			}
		}
	})

	t.Run("timeout returns an empty list", func(t *testing.T) {
		h, _ := newTestServer(t, Options{})
		rr := do(h, http.MethodGet, "/api/events?wait=20ms", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if body := strings.TrimSpace(rr.Body.String()); body != `{"events":[]}` {
			t.Errorf("body = %s", body)
		}
	})
}

func TestEventHub(t *testing.T) {
	h := newEventHub(time.Second)
	registered := func() int {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.waiters)
	}
	got := make(chan []vfs.FileChangeEvent, 2)
	for range 2 {
		go func() { got <- h.wait(t.Context(), 0) }()
	}
	deadline := time.Now().Add(5 * time.Second)
	for registered() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("waiters did not register")
		}
		time.Sleep(time.Millisecond)
	}
	batch := []vfs.FileChangeEvent{{Type: vfs.Created, URI: vfs.URI{Collection: "ws", ID: "x"}}}
	h.publish(batch)
	for range 2 {
		if b := <-got; len(b) != 1 || b[0] != batch[0] {
			t.Errorf("batch = %+v", b)
		}
	}
	if n := registered(); n != 0 {
		t.Errorf("%d waiters left", n)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if b := h.wait(ctx, 0); b != nil {
		t.Errorf("canceled wait = %+v", b)
	}
}

func TestRateLimit(t *testing.T) {
	l := ratelimit.NewLimiter(1, time.Minute, 1)
	defer l.Close()
	h, _ := newTestServer(t, Options{Limiter: l})
	if rr := do(h, http.MethodPut, "/fs/ws/x?create", `{"label":"X"}`); rr.Code != http.StatusNoContent {
		t.Fatalf("first PUT: expected status 204, got %d: %s", rr.Code, rr.Body)
	}
	rr := do(h, http.MethodPut, "/fs/ws/y?create", `{"label":"Y"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second PUT: expected status 429, got %d", rr.Code)
	}
	e := decode[errorResponse](t, rr)
	if e.Error.Code != ErrCodeRateLimited || e.Details["retry_after"] == nil {
		t.Errorf("body = %+v", e)
	}
	if rr := do(h, http.MethodGet, "/fs/ws/x", ""); rr.Code != http.StatusOK {
		t.Errorf("GET: expected status 200, got %d", rr.Code)
	}
}
