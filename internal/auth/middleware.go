package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/logging"
)

type ctxKey int

const identityKey ctxKey = iota

// TokenVerifier resolves an access token into an identity.
type TokenVerifier interface {
	Verify(token string) (access.Identity, error)
}

// WithIdentity stores the signed-in identity on the context.
func WithIdentity(ctx context.Context, identity access.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity stored by RequireAuth, or the
// anonymous identity when none is present.
func IdentityFromContext(ctx context.Context) access.Identity {
	if ctx == nil {
		return access.Identity{}
	}
	identity, _ := ctx.Value(identityKey).(access.Identity)
	return identity
}

// TokenFromRequest reads a bearer token from the Authorization header, falling
// back to the access_token query parameter used by websocket clients.
func TokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// RequireAuth rejects requests without a valid access token and stores the
// verified identity on the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "authorization required")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("access token rejected", "error", err)
				unauthorized(w, "invalid access token")
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = logging.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is presented and
// otherwise lets the request through anonymously.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("ignoring invalid optional token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), identity)
			ctx = logging.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
