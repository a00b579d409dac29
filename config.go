package oauth

import (
	"log/slog"
	"time"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/security"
)

// DefaultPostLoginRedirect is where the browser goes after a successful login.
const DefaultPostLoginRedirect = "/challenges"

// Config holds the login handler configuration
type Config struct {
	// PostLoginRedirect is the local path users land on after logging in.
	// Default: DefaultPostLoginRedirect
	PostLoginRedirect string

	// Rate limiting configuration for the callback endpoint
	RateLimit RateLimitConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Auditor records security events (optional)
	Auditor *security.Auditor

	// Instrumentation records HTTP metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is callbacks per second allowed per client IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per client IP.
	Burst int

	// CleanupInterval is how often to cleanup inactive rate limiters.
	CleanupInterval time.Duration

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxies is the number of proxies in front of the server when
	// TrustProxy is set.
	TrustedProxies int
}

func (c *Config) applyDefaults() {
	if c.PostLoginRedirect == "" {
		c.PostLoginRedirect = DefaultPostLoginRedirect
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
}
