package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{"forwarded for first entry", "203.0.113.5, 10.0.0.1", "", "10.0.0.2:1234", "203.0.113.5"},
		{"real ip", "", "198.51.100.7", "10.0.0.2:1234", "198.51.100.7"},
		{"remote addr", "", "", "192.0.2.1:5678", "192.0.2.1"},
		{"remote addr without port", "", "", "192.0.2.1", "192.0.2.1"},
		{"ipv6 forwarded for", "2001:db8::1", "", "10.0.0.2:1234", "2001:db8::1"},
		{"junk forwarded for falls back to real ip", "not-an-ip", "198.51.100.7", "10.0.0.2:1234", "198.51.100.7"},
		{"oversized forwarded for falls back to remote addr", strings.Repeat("x", 80), "", "192.0.2.1:5678", "192.0.2.1"},
		{"junk real ip falls back to remote addr", "", "localhost", "192.0.2.1:5678", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPMiddleware_InjectsIntoContext(t *testing.T) {
	var captured string
	handler := NewClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "198.51.100.7" {
		t.Errorf("client ip = %q, want 198.51.100.7", captured)
	}
}

func TestClientIPFromContext_Missing_ReturnsError(t *testing.T) {
	if _, err := ClientIPFromContext(context.Background()); err == nil {
		t.Error("expected error when client ip is absent")
	}
}

func TestAnnotateBucket_WithoutLogging_IsNoop(t *testing.T) {
	AnnotateBucket(context.Background(), "control")
}
