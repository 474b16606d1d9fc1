package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/craftfolio/api/internal/domain"
)

type stubVerifier struct {
	identity *Identity
	err      error
	gotToken string
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	s.gotToken = token
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func performRequest(t *testing.T, authn *Authenticator, header string, roles ...domain.Role) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()

	var captured *Identity
	handler := authn.RequireAuth(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			captured = identity
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestRequireAuthPassesValidToken(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{ID: "usr_1", Role: domain.RoleAdmin}}
	authn := NewAuthenticator(verifier)

	rec, captured := performRequest(t, authn, "Bearer good-token")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if verifier.gotToken != "good-token" {
		t.Fatalf("verifier received %q", verifier.gotToken)
	}
	if captured == nil || captured.ID != "usr_1" {
		t.Fatalf("identity not stored in context: %+v", captured)
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{identity: &Identity{ID: "usr_1", Role: domain.RoleAdmin}})

	rec, _ := performRequest(t, authn, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{identity: &Identity{ID: "usr_1", Role: domain.RoleAdmin}})

	for _, header := range []string{"Bearer", "Token abc", "Bearer   "} {
		rec, _ := performRequest(t, authn, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: unexpected status %d", header, rec.Code)
		}
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{err: ErrTokenExpired})

	rec, _ := performRequest(t, authn, "Bearer stale")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "token_expired") {
		t.Fatalf("expected token_expired error, got %s", body)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{err: errors.New("boom")})

	rec, _ := performRequest(t, authn, "Bearer broken")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequireAuthRoleGate(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{ID: "usr_1", Role: domain.RoleClient}}
	authn := NewAuthenticator(verifier)

	rec, _ := performRequest(t, authn, "Bearer token", domain.RoleAdmin, domain.RoleDeveloper)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequireAuthSuperuserBypassesRoleGate(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{ID: "usr_root", Superuser: true}}
	authn := NewAuthenticator(verifier)

	rec, captured := performRequest(t, authn, "Bearer token", domain.RoleAdmin)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if captured == nil || !captured.Superuser {
		t.Fatalf("superuser identity not propagated: %+v", captured)
	}
}
