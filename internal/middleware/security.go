package middleware

import (
	"net/http"
	"strings"
)

// SecureHeaders sets the headers the admin console expects on every response.
// The backend serves JSON and CSV only, so nothing may be framed, sniffed, or
// cached: statistics snapshots are recomputed per request and a cached copy
// would show stale lifecycle state.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}
