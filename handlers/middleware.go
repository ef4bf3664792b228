package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/camden-git/eventfaces/permissions"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// CallerContextKey stores the permissions.Caller of the request.
	CallerContextKey ContextKey = "caller"

	// UserIDHeader is set by the authenticating proxy in front of this service.
	UserIDHeader = "X-User-ID"
)

// CallerIdentity reads the already authenticated user id from UserIDHeader
// and stores the caller in the request context.
func CallerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, UserIDHeader+" header required")
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Invalid user ID in "+UserIDHeader)
			return
		}

		ctx := context.WithValue(r.Context(), CallerContextKey, permissions.UserCaller(uint(id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the caller stored by CallerIdentity
func CallerFromContext(ctx context.Context) (permissions.Caller, bool) {
	caller, ok := ctx.Value(CallerContextKey).(permissions.Caller)
	return caller, ok
}
