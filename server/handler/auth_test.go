package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func requestWithHeader(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestAuthenticator_Verify(t *testing.T) {
	auth := NewAuthenticator(testSecret, "arena")
	valid, err := IssueToken(testSecret, "arena", "peer-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, _ := IssueToken(testSecret, "arena", "peer-1", -time.Minute)
	forged, _ := IssueToken("other-secret", "arena", "peer-1", time.Minute)
	wrongIssuer, _ := IssueToken(testSecret, "someone-else", "peer-1", time.Minute)

	tests := []struct {
		name    string
		req     *http.Request
		wantErr bool
	}{
		{name: "header", req: requestWithHeader(valid)},
		{name: "query", req: httptest.NewRequest(http.MethodGet, "/ws?token="+valid, nil)},
		{name: "missing", req: httptest.NewRequest(http.MethodGet, "/ws", nil), wantErr: true},
		{name: "expired", req: requestWithHeader(expired), wantErr: true},
		{name: "forged", req: requestWithHeader(forged), wantErr: true},
		{name: "wrong issuer", req: requestWithHeader(wrongIssuer), wantErr: true},
		{name: "garbage", req: requestWithHeader("not-a-token"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := auth.Verify(tt.req)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if subject != "peer-1" {
				t.Errorf("subject = %q, want peer-1", subject)
			}
		})
	}
}

func TestAcceptHandler_RejectsWithoutToken(t *testing.T) {
	h := NewAcceptHandler(nil, nil, WithAuthenticator(NewAuthenticator(testSecret, "arena")))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}
