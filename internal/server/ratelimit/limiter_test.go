package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	t.Run("burst then refuse", func(t *testing.T) {
		l := NewLimiter(5, time.Minute, 5)
		defer l.Close()
		for i := range 5 {
			res := l.Allow("k")
			if !res.Allowed {
				t.Fatalf("request %d refused", i+1)
			}
			if res.Limit != 5 || res.RetryAfter != 0 {
				t.Errorf("request %d: %+v", i+1, res)
			}
		}
		res := l.Allow("k")
		if res.Allowed {
			t.Error("6th request allowed")
		}
		if res.Remaining != 0 || res.RetryAfter < time.Second {
			t.Errorf("refused result = %+v", res)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewLimiter(1, time.Minute, 1)
		defer l.Close()
		l.Allow("a")
		if l.Allow("a").Allowed {
			t.Error("a should be limited")
		}
		if !l.Allow("b").Allowed {
			t.Error("b should be allowed")
		}
	})

	t.Run("unlimited", func(t *testing.T) {
		l := NewLimiter(0, time.Minute, 0)
		if l != nil {
			t.Fatal("NewLimiter(0) != nil")
		}
		for range 100 {
			if !l.Allow("k").Allowed {
				t.Fatal("nil limiter refused")
			}
		}
		l.Close()
	})

	t.Run("cleanup", func(t *testing.T) {
		l := NewLimiter(60, time.Minute, 1)
		defer l.Close()
		l.Allow("k")
		l.cleanup(time.Now().Add(time.Hour))
		l.mu.Lock()
		n := len(l.buckets)
		l.mu.Unlock()
		if n != 0 {
			t.Errorf("%d buckets left", n)
		}
	})
}

func TestWrites(t *testing.T) {
	l := NewLimiter(1, time.Minute, 1)
	defer l.Close()
	refused := 0
	h := Writes(l, func(w http.ResponseWriter, r *http.Request, res Result) {
		refused++
		w.WriteHeader(http.StatusTooManyRequests)
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method, ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(method, "/fs/ws/x", nil)
		r.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}
	if w := do(http.MethodPut, "10.0.0.1"); w.Code != http.StatusNoContent {
		t.Errorf("first PUT = %d", w.Code)
	}
	w := do(http.MethodPut, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("second PUT = %d, headers %v", w.Code, w.Header())
	}
	if w := do(http.MethodGet, "10.0.0.1"); w.Code != http.StatusNoContent {
		t.Errorf("GET = %d, reads are not limited", w.Code)
	}
	if w := do(http.MethodPut, "10.0.0.2"); w.Code != http.StatusNoContent {
		t.Errorf("PUT from other client = %d", w.Code)
	}
	if refused != 1 {
		t.Errorf("refused = %d", refused)
	}
}

func TestWriteHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, Result{Allowed: false, Limit: 60, ResetAt: time.Unix(1706012345, 0), RetryAfter: 30 * time.Second})
	want := map[string]string{
		"X-RateLimit-Limit":     "60",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "1706012345",
		"Retry-After":           "30",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		hdr    map[string]string
		want   string
	}{
		{"ipv4", "1.2.3.4:5", nil, "1.2.3.4"},
		{"ipv6", "[::1]:5", nil, "::1"},
		{"forwarded", "1.2.3.4:5", map[string]string{"X-Forwarded-For": "9.9.9.9, 1.2.3.4"}, "9.9.9.9"},
		{"real ip", "1.2.3.4:5", map[string]string{"X-Real-IP": "8.8.8.8"}, "8.8.8.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.hdr {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
