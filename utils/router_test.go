package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"http://127.0.0.1:7878", true},
		{"http://192.168.1.20", true},
		{"http://10.0.0.5:8080", true},
		{"http://[::1]:7878", true},
		{"http://[fe80::1]", true},
		{"http://kodi.local", true},
		{"http://mediabox:8080", true},
		{"https://example.com", false},
		{"http://8.8.8.8", false},
		{"file:///etc/passwd", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		if got := IsLocalOrigin(tt.origin); got != tt.want {
			t.Errorf("IsLocalOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestRouterHealthAndCORS(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected local origin to be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected remote origin to be rejected, got %q", got)
	}
}
