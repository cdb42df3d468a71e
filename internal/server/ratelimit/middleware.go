// Provides HTTP middleware and response headers for rate limiting.

package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
)

// WriteHeaders writes rate limit headers to the response. Retry-After is only
// set when the request was refused.
func WriteHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// IsWrite reports whether method mutates state.
func IsWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Writes limits write requests per client IP. Refused requests get the rate
// limit headers and are answered by refuse.
func Writes(l *Limiter, refuse func(http.ResponseWriter, *http.Request, Result), next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsWrite(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		res := l.Allow("ip:" + ClientIP(r))
		WriteHeaders(w, res)
		if !res.Allowed {
			refuse(w, r, res)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the client address, honoring X-Forwarded-For and
// X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, ok := strings.Cut(addr, "]:"); ok {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, ok := strings.Cut(addr, ":"); ok {
		return host
	}
	return addr
}
