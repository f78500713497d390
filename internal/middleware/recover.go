package middleware

import (
	"net/http"
	"runtime/debug"

	"detectserver/internal/logger"
)

// Recover turns a panic in next into a call to onPanic.
func Recover(logger *logger.Logger, onPanic http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
					onPanic.ServeHTTP(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
