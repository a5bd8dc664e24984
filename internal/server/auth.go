package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AnonymousPrincipal is used for every request when no tokens are configured.
const AnonymousPrincipal = "anonymous"

type principalKey struct{}

// Authenticator resolves bearer tokens to principal ids from a static table.
type Authenticator struct {
	tokens map[string]string
}

func NewAuthenticator(tokens map[string]string) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Resolve returns the principal of an Authorization header value.
func (a *Authenticator) Resolve(header string) (string, bool) {
	if len(a.tokens) == 0 {
		return AnonymousPrincipal, true
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	for known, principal := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return principal, true
		}
	}
	return "", false
}

// Middleware rejects unauthenticated requests with 401 and stores the principal in the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := a.Resolve(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="docsearch"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "invalid or missing bearer token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

// PrincipalFrom returns the authenticated principal stored by Middleware.
func PrincipalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok {
		return p
	}
	return AnonymousPrincipal
}
