// Package identity defines the boundary between the transfer coordination
// core and the external identity collaborator. User authentication
// and session storage are explicitly out of scope for this core; it only
// needs to resolve an inbound request to an owner id (or reject it).
//
// Auth is delegated, not reimplemented: Middleware wraps any Verifier,
// so swapping the reference JWT implementation for the real session store
// is a one-line change at the composition root (cmd/coordinatord).
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrInvalidToken is returned by a Verifier when the bearer token is absent,
// malformed, or fails verification.
var ErrInvalidToken = errors.New("identity: invalid or missing token")

// Verifier resolves a bearer token to an owner id. Implementations are the
// external identity collaborator's responsibility; this package ships one
// reference implementation (jwt.go) so the core is runnable standalone.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (ownerID string, err error)
}

type contextKey string

const ownerIDKey contextKey = "ownerID"

// Middleware extracts "Authorization: Bearer <token>", verifies it via v,
// and stores the resulting owner id in the request context. Requests
// without a valid token receive 401 before the handler runs.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, `{"message":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			ownerID, err := v.Verify(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("identity: verification failed")
				http.Error(w, `{"message":"invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ContextWithOwnerID returns a context carrying ownerID as Middleware would
// have set it. Exposed for callers that resolve identity outside the HTTP
// middleware chain (tests, internal service-to-service calls).
func ContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerID extracts the authenticated owner id set by Middleware. The empty
// string means no authenticated request is in scope (e.g. public share
// download endpoints, which never run Middleware).
func OwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}
