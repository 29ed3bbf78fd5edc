// Package api implements the webring REST API using chi.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/webring/internal/moderation"
)

// DefaultAdminHeader carries the moderation secret when none is configured.
const DefaultAdminHeader = "X-Admin-Password"

// AdminMiddleware rejects requests whose header does not carry the secret
// accepted by guard.
func AdminMiddleware(guard *moderation.Guard, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultAdminHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := guard.Check(r.Header.Get(header)); err != nil {
				slog.Warn("admin request rejected",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr))
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
