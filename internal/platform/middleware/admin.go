package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/httputil"
	"idserver/pkg/requestcontext"
)

const adminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards admin routes. The configured value is a bcrypt hash
// of the key; an empty hash locks the routes entirely.
func RequireAdminKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := r.Header.Get(adminKeyHeader)
			if keyHash == "" || key == "" ||
				bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				logger.WarnContext(ctx, "admin key mismatch",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin key required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, "admin")))
		})
	}
}
