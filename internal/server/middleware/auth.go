package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type callerKey struct{}

// WithCaller attaches an authenticated caller address to the context.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the caller address the auth middleware resolved for
// this request, and false when the request was not authenticated.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// Auth returns middleware that authenticates requests against a set of API
// keys, each mapped to the caller address it acts as. The presented key
// (Authorization: Bearer or X-API-Key) selects the identity, which is
// attached to the request context; handlers treat it as authoritative over
// any address named in the body. An empty key set disables authentication.
func Auth(keys map[string]common.Address) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			caller, ok := resolveKey(keys, token)
			if !ok {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// resolveKey matches the token against every configured key. Each candidate
// is compared in constant time so the scan leaks nothing about key contents.
func resolveKey(keys map[string]common.Address, token string) (common.Address, bool) {
	var (
		caller common.Address
		found  bool
	)
	for key, addr := range keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			caller, found = addr, true
		}
	}
	return caller, found
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
