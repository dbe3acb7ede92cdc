package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/account", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector(nil)

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct public", "203.0.113.9:5000", "", "", "203.0.113.9"},
		{"untrusted forwarder ignored", "203.0.113.9:5000", "198.51.100.1", "", "203.0.113.9"},
		{"private network not trusted by default", "10.0.0.7:5000", "203.0.113.1", "", "10.0.0.7"},
		{"loopback proxy xff", "127.0.0.1:443", "198.51.100.1", "", "198.51.100.1"},
		{"spoofed leftmost entry ignored", "127.0.0.1:443", "1.2.3.4, 198.51.100.1", "", "198.51.100.1"},
		{"loopback proxy real ip", "127.0.0.1:443", "", "198.51.100.7", "198.51.100.7"},
		{"loopback proxy bad header", "127.0.0.1:80", "garbage", "", "127.0.0.1"},
		{"only trusted hops", "127.0.0.1:80", "127.0.0.2", "", "127.0.0.2"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, d.ExtractClientIP(req))
		})
	}
}

func TestExtractClientIPProxyChain(t *testing.T) {
	d := NewDetector(nil)
	require.NoError(t, d.AddTrustedProxy("10.0.0.0/8"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Add("X-Forwarded-For", "203.0.113.50, 198.51.100.4")
	req.Header.Add("X-Forwarded-For", "10.0.0.9")
	assert.Equal(t, "198.51.100.4", d.ExtractClientIP(req))

	// Rotating the client supplied part does not change the result.
	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2", "8.8.8.8"} {
		req.Header.Set("X-Forwarded-For", spoofed+", 198.51.100.4, 10.0.0.9")
		assert.Equal(t, "198.51.100.4", d.ExtractClientIP(req))
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector(nil)
	require.Error(t, d.AddTrustedProxy("nope"))
	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(req))
}

func TestSuspiciousRequestsAreCountedNotBlocked(t *testing.T) {
	d := NewDetector(nil)
	called := 0
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/account", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.env", nil))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 3, called)
	assert.Equal(t, int64(2), d.SuspiciousRequests())
}
