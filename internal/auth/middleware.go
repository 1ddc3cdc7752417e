package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey struct{}

// Identity is the authenticated caller extracted from a verified access
// token.
type Identity struct {
	ID       string
	Email    string
	FullName string
	UserName string
}

// IdentityFromContext returns the caller identity stashed by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// Middleware verifies the access token from the accessToken cookie or the
// Authorization header and makes the caller identity available on the
// request context.
func Middleware(issuer *Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFromRequest(r)
		if tokenStr == "" {
			writeUnauthorized(w, "missing authorization token")
			return
		}

		claims, err := issuer.VerifyAccessToken(tokenStr)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		identity := Identity{
			ID:       claims.Subject,
			Email:    claims.Email,
			FullName: claims.FullName,
			UserName: claims.UserName,
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, identity)))
	})
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie("accessToken"); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
