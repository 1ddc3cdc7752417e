package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func protectedEcho(t *testing.T, issuer *Issuer) http.Handler {
	t.Helper()
	return Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		w.Header().Set("X-User", identity.UserName)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddleware_BearerToken(t *testing.T) {
	issuer := newTestIssuer(time.Minute, time.Hour)
	token, err := issuer.IssueAccessToken("user-1", "jane@x.com", "Jane Doe", "janedoe")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, issuer).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-User") != "janedoe" {
		t.Fatalf("identity not propagated")
	}
}

func TestMiddleware_CookieToken(t *testing.T) {
	issuer := newTestIssuer(time.Minute, time.Hour)
	token, err := issuer.IssueAccessToken("user-1", "jane@x.com", "Jane Doe", "janedoe")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	rec := httptest.NewRecorder()
	protectedEcho(t, issuer).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	issuer := newTestIssuer(time.Minute, time.Hour)
	handler := Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run")
	}))

	cases := map[string]func(*http.Request){
		"no token":       func(r *http.Request) {},
		"garbage bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") },
		"bad scheme":     func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
		"empty cookie":   func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "accessToken", Value: ""}) },
	}

	for name, prepare := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		prepare(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestMiddleware_RefreshTokenNotAcceptedAsAccess(t *testing.T) {
	issuer := newTestIssuer(time.Minute, time.Hour)
	refresh, _, err := issuer.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()
	Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
