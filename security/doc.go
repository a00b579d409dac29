// Package security provides the security plumbing around the login endpoints:
// audit logging, callback rate limiting, client IP extraction, request ids, and
// response headers.
//
// # Audit Logging
//
// Auditor writes structured security events through log/slog. User ids and
// emails are hashed before they reach the log.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogUserProvisioned("mlc", userID, "203.0.113.7")
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per identifier (usually a client IP) and
// bounds memory with LRU eviction plus a periodic idle sweep.
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{Rate: 5, Burst: 10}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(security.GetClientIP(r, false, 0)) {
//		http.Error(w, "too many requests", http.StatusTooManyRequests)
//		return
//	}
package security
