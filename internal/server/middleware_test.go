package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashita-ai/ichiba/internal/auth"
	"github.com/ashita-ai/ichiba/internal/ctxutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := requestIDMiddleware(inner)

	// Without a client-supplied ID one is generated and echoed.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header X-Request-ID = %q, context has %q", got, seen)
	}

	// A client-supplied ID is kept.
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "req-abc" {
		t.Errorf("request ID = %q, want req-abc", seen)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	recoveryMiddleware(discardLogger(), inner).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tools", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error code = %q, want INTERNAL_ERROR", body.Error.Code)
	}
}

func newAuthFixtures(t *testing.T) (*auth.Keyring, *auth.JWTManager) {
	t.Helper()
	hash, err := auth.HashAPIKey("middleware-test-key")
	if err != nil {
		t.Fatal(err)
	}
	keyring, err := auth.NewKeyring([]string{hash})
	if err != nil {
		t.Fatal(err)
	}
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return keyring, jwtMgr
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	keyring, jwtMgr := newAuthFixtures(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(keyring, jwtMgr, inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/market/summary", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/v1/market/summary", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/market/summary", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewarePopulatesClaims(t *testing.T) {
	keyring, jwtMgr := newAuthFixtures(t)
	token, _, err := jwtMgr.IssueToken("key-abc123def456")
	if err != nil {
		t.Fatal(err)
	}

	var subject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = ctxutil.Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/v1/market/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authMiddleware(keyring, jwtMgr, inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if subject != "key-abc123def456" {
		t.Errorf("subject = %q, want key-abc123def456", subject)
	}
}

func TestAuthMiddlewarePublicPaths(t *testing.T) {
	keyring, jwtMgr := newAuthFixtures(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(keyring, jwtMgr, inner)

	for _, path := range []string{"/health", "/v1/auth/token", "/openapi.yaml"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without token", path, rec.Code)
		}
	}
}

func TestAuthMiddlewareDisabledWithoutKeys(t *testing.T) {
	keyring, err := auth.NewKeyring(nil)
	if err != nil {
		t.Fatal(err)
	}
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	authMiddleware(keyring, jwtMgr, inner).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/market/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when no keys configured", rec.Code)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message":"hi","bogus":1}`))
	var target struct {
		Message string `json:"message"`
	}
	err := decodeJSON(httptest.NewRecorder(), req, &target, 1<<20)
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message":"hi"}{"message":"again"}`))
	var target struct {
		Message string `json:"message"`
	}
	err := decodeJSON(httptest.NewRecorder(), req, &target, 1<<20)
	if err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestDecodeJSONBodyCap(t *testing.T) {
	big := `{"message":"` + strings.Repeat("x", 200) + `"}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(big))
	var target struct {
		Message string `json:"message"`
	}
	err := decodeJSON(httptest.NewRecorder(), req, &target, 64)
	if err == nil {
		t.Fatal("expected max-bytes error")
	}

	rec := httptest.NewRecorder()
	handleDecodeError(rec, req, err)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
