package middleware

import (
	"context"
	apperrors "dashcollab/pkg/errors"
	httputil "dashcollab/pkg/http"
	"dashcollab/pkg/logger"
	"net/http"
	"strings"
)

const (
	UserIDHeader   = "X-User-ID"
	UserNameHeader = "X-User-Name"
)

const identityKey contextKey = "identity"

// Identity is the caller as asserted by the authentication gateway in front
// of the service. It is trusted as-is.
type Identity struct {
	UserID   string
	UserName string
}

// RequireIdentity rejects requests without a user id with 401.
// A missing user name falls back to the user id.
func RequireIdentity(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity{
				UserID:   strings.TrimSpace(r.Header.Get(UserIDHeader)),
				UserName: strings.TrimSpace(r.Header.Get(UserNameHeader)),
			}
			if identity.UserID == "" {
				log.Warn("Request without caller identity",
					"request_id", requestIDFrom(r),
					"path", r.URL.Path,
					"method", r.Method,
				)
				_ = httputil.WriteError(w, apperrors.Unauthorized("Missing "+UserIDHeader+" header"))
				return
			}
			if identity.UserName == "" {
				identity.UserName = identity.UserID
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
