package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fdg312/informes-hub/internal/config"
)

func TestCORS(t *testing.T) {
	cfg := &config.Config{
		CORSAllowedOrigins:   []string{"https://panel.example.com/", " http://localhost:3000"},
		CORSAllowCredentials: true,
	}

	tests := []struct {
		name        string
		method      string
		origin      string
		wantCode    int
		wantOrigin  string
		wantMethods bool
		wantInner   bool
	}{
		{"preflight allowed", http.MethodOptions, "https://panel.example.com", http.StatusNoContent, "https://panel.example.com", true, false},
		{"preflight disallowed", http.MethodOptions, "https://evil.example.com", http.StatusNoContent, "", false, false},
		{"request allowed", http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000", false, true},
		{"request disallowed", http.MethodPost, "https://evil.example.com", http.StatusOK, "", false, true},
		{"no origin", http.MethodGet, "", http.StatusOK, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			innerCalled := false
			handler := CORSMiddleware(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				innerCalled = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/v1/submissions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			if innerCalled != tt.wantInner {
				t.Errorf("inner handler called=%t, want %t", innerCalled, tt.wantInner)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Allow-Origin=%q, got %q", tt.wantOrigin, got)
			}
			if got := rr.Header().Get("Access-Control-Allow-Methods"); (got != "") != tt.wantMethods {
				t.Errorf("unexpected Allow-Methods %q", got)
			}
			if tt.wantOrigin != "" {
				if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
					t.Errorf("expected Allow-Credentials=true, got %q", got)
				}
				if got := rr.Header().Get("Access-Control-Expose-Headers"); got != corsExposeHeaders {
					t.Errorf("expected Expose-Headers, got %q", got)
				}
			}
		})
	}
}
