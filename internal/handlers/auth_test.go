package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jjudge-oj/judgeserver/types"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestRequireAuth(t *testing.T) {
	const secret = "s3cret"
	valid := func(sub, role string) Claims {
		return Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}
	expired := valid("5", "user")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantRole   types.Role
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + sign(t, "other", valid("5", "admin")), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, secret, expired), http.StatusUnauthorized, ""},
		{"non-numeric subject", "Bearer " + sign(t, secret, valid("alice", "user")), http.StatusUnauthorized, ""},
		{"admin", "Bearer " + sign(t, secret, valid("5", "admin")), http.StatusOK, types.RoleAdmin},
		{"unknown role is user", "Bearer " + sign(t, secret, valid("5", "root")), http.StatusOK, types.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRole types.Role
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				viewer, err := viewerFromContext(r.Context())
				if err != nil {
					t.Errorf("viewer missing: %v", err)
				}
				gotRole = viewer.Role
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(secret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if gotRole != tt.wantRole {
				t.Fatalf("expected role %q, got %q", tt.wantRole, gotRole)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	const secret = "s3cret"
	handler := RequireAuth(secret)(RequireRole(types.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for role, want := range map[string]int{"admin": http.StatusNoContent, "user": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, secret, Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: "9"}}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, rec.Code)
		}
	}
}
