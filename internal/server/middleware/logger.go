package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger creates a middleware that logs details about each incoming
// request. When it runs after authentication the entry also carries the
// resolved user id.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
			}
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				attrs = append(attrs, slog.String("ip", reqMeta.IP))
				if reqMeta.Identity.UserID != "" {
					attrs = append(attrs, slog.String("userID", reqMeta.Identity.UserID))
				}
			}

			logger.Info("Incoming HTTP request", attrs...)
			next.ServeHTTP(w, r)
		})
	}
}
