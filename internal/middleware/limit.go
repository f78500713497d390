package middleware

import (
	"net/http"
)

// BodyLimit caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are answered by onTooLarge without reading the body;
// the rest get a body that fails with *http.MaxBytesError once the limit is
// crossed.
func BodyLimit(limit int64, onTooLarge http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				onTooLarge.ServeHTTP(w, r)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
