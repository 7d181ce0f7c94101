// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey struct{}

// ActorFromContext returns the actor name associated with the bearer
// token that authenticated the request, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(contextKey{}).(string)
	return actor, ok
}

// BearerTokens returns middleware that validates the Authorization header
// against the token-to-actor table. Every configured token is compared in
// constant time regardless of where the match occurs, to prevent timing
// side-channel attacks. The matching actor name is attached to the
// request context.
func BearerTokens(tokens map[string]string) func(http.Handler) http.Handler {
	type entry struct {
		token []byte
		actor string
	}
	entries := make([]entry, 0, len(tokens))
	for token, actor := range tokens {
		entries = append(entries, entry{token: []byte(token), actor: actor})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len("Bearer "):])

			actor := ""
			matched := 0
			for _, e := range entries {
				if subtle.ConstantTimeCompare(got, e.token) == 1 {
					matched = 1
					actor = e.actor
				}
			}

			if matched != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, actor)))
		})
	}
}
