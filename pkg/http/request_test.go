package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/scholar/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	proxies := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "not-a-cidr"}}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		config     *pkghttp.IPConfig
		want       string
	}{
		{"direct peer ignores spoofed headers", "203.0.113.10:5000", "1.2.3.4", "5.6.7.8", proxies, "203.0.113.10"},
		{"trusted proxy uses first valid forwarded ip", "10.0.0.5:5000", "garbage, 198.51.100.7, 1.1.1.1", "", proxies, "198.51.100.7"},
		{"trusted proxy falls back to x-real-ip", "10.0.0.5:5000", "", "198.51.100.9", proxies, "198.51.100.9"},
		{"nil config never trusts headers", "203.0.113.10:5000", "1.2.3.4", "", nil, "203.0.113.10"},
		{"remote addr without port", "203.0.113.11", "", "", proxies, "203.0.113.11"},
		{"ipv6 trusted proxy", "[fd00::1]:443", "2001:db8::5", "", &pkghttp.IPConfig{TrustedProxies: []string{"fd00::/8"}}, "2001:db8::5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@x.com"}`))
		var b body
		require.NoError(t, pkghttp.DecodeJSON(req, &b))
		assert.Equal(t, "a@x.com", b.Email)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@x.com","role":"admin"}`))
		var b body
		assert.Error(t, pkghttp.DecodeJSON(req, &b))
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var b body
		err := pkghttp.DecodeJSON(req, &b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}
