package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		proxies    int
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:51234",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarding headers ignored when proxy untrusted",
			remoteAddr: "192.0.2.10:51234",
			xff:        "203.0.113.5",
			want:       "192.0.2.10",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.1:80",
			xff:        "203.0.113.5, 10.0.0.1",
			trustProxy: true,
			want:       "203.0.113.5",
		},
		{
			name:       "two trusted proxies",
			remoteAddr: "10.0.0.1:80",
			xff:        "203.0.113.5, 198.51.100.9, 10.0.0.2",
			trustProxy: true,
			proxies:    2,
			want:       "203.0.113.5",
		},
		{
			name:       "invalid forwarded value falls back to X-Real-IP",
			remoteAddr: "10.0.0.1:80",
			xff:        "not-an-ip",
			xRealIP:    "203.0.113.8",
			trustProxy: true,
			want:       "203.0.113.8",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/oauth/callback", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := GetClientIP(r, tt.trustProxy, tt.proxies); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
