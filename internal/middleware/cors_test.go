package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	const origin = "http://localhost:3000"

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed bool
		wantCalled  bool
	}{
		{"allowed origin GET", http.MethodGet, origin, false, http.StatusOK, true, true},
		{"other origin GET", http.MethodGet, "https://evil.example", false, http.StatusOK, false, true},
		{"preflight", http.MethodOptions, origin, true, http.StatusNoContent, true, false},
		{"plain OPTIONS", http.MethodOptions, origin, false, http.StatusOK, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCORSMiddleware(origin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/auth/login", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin") == origin; got != tt.wantAllowed {
				t.Errorf("allow-origin set = %v, want %v", got, tt.wantAllowed)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantAllowed {
				if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
					t.Errorf("Allow-Credentials = %q", got)
				}
				if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), CSRFHeaderName) {
					t.Error("Allow-Headers should include the CSRF header")
				}
			}
		})
	}
}
