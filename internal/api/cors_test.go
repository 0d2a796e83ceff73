package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{"disabled", nil, "GET", "https://app.example.com", "", http.StatusOK},
		{"no origin header", []string{"*"}, "GET", "", "", http.StatusOK},
		{"any origin", []string{"*"}, "POST", "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"listed origin", []string{"https://a.example.com", "https://app.example.com"}, "GET", "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"unlisted origin", []string{"https://a.example.com"}, "GET", "https://evil.example.com", "", http.StatusOK},
		{"preflight", []string{"*"}, "OPTIONS", "https://app.example.com", "https://app.example.com", http.StatusNoContent},
		{"preflight unlisted", []string{"https://a.example.com"}, "OPTIONS", "https://evil.example.com", "", http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &Server{config: Config{CORSAllowedOrigins: c.allowed}}
			req := httptest.NewRequest(c.method, "/api/Notifications/subscribe", nil)
			if c.origin != "" {
				req.Header.Set("Origin", c.origin)
			}
			w := httptest.NewRecorder()
			s.CORSMiddleware(ok).ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != c.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, c.wantOrigin)
			}
			if w.Code != c.wantCode {
				t.Errorf("status = %d, want %d", w.Code, c.wantCode)
			}
			if c.wantOrigin != "" && w.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
				t.Errorf("Allow-Methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
