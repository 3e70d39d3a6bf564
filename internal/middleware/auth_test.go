package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenAuthOpenWhenNoTokens(t *testing.T) {
	h := TokenAuth(okHandler(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no tokens configured, got %d", rec.Code)
	}
}

func TestTokenAuthRejectsMissingToken(t *testing.T) {
	h := TokenAuth(okHandler(), []string{"secret-token"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTokenAuthAcceptsValidToken(t *testing.T) {
	h := TokenAuth(okHandler(), []string{"secret-token", "other-token"})

	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	req.Header.Set("Authorization", "Bearer other-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTokenAuthRejectsWrongToken(t *testing.T) {
	h := TokenAuth(okHandler(), []string{"secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTokenAuthExemptsProbePaths(t *testing.T) {
	h := TokenAuth(okHandler(), []string{"secret-token"})

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without a token, got %d", path, rec.Code)
		}
	}
}

func TestTokenAuthIgnoresBlankConfiguredTokens(t *testing.T) {
	h := TokenAuth(okHandler(), []string{"  ", ""})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("blank tokens should leave the API open, got %d", rec.Code)
	}
}
