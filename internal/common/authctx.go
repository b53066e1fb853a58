package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	roleKey   ctxKey = "auth/role"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// WithRole stores the caller's role on the provided context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// Role extracts the caller's role from the context if present.
func Role(ctx context.Context) (string, bool) {
	v := ctx.Value(roleKey)
	if v == nil {
		return "", false
	}
	role, ok := v.(string)
	return role, ok && role != ""
}

// Identity reads the caller identity established by the upstream auth proxy
// from the X-User-ID and X-User-Role headers. Absence of the headers means a
// guest request; endpoints that require an account check the context
// themselves.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			ctx = WithUserID(ctx, id)
		}
		if role := strings.TrimSpace(r.Header.Get("X-User-Role")); role != "" {
			ctx = WithRole(ctx, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects guest requests for account-only endpoints.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects callers whose role is not staff or admin.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := Role(r.Context())
		if role != "staff" && role != "admin" {
			JSONError(w, http.StatusForbidden, "FORBIDDEN", "staff access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
