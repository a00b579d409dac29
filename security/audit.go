package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Provider  string
	UserID    string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the user id hashed
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"provider", event.Provider,
		"user_id_hash", hashForLogging(event.UserID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs a redirect to a provider
func (a *Auditor) LogLoginStarted(provider, ipAddress string) {
	a.LogEvent(Event{Type: EventLoginStarted, Provider: provider, IPAddress: ipAddress})
}

// LogLoginSucceeded logs a callback that resolved to a local user
func (a *Auditor) LogLoginSucceeded(provider string, userID int64, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventLoginSucceeded,
		Provider:  provider,
		UserID:    formatID(userID),
		IPAddress: ipAddress,
	})
}

// LogLoginFailed logs a failed callback. kind is the provider error kind.
func (a *Auditor) LogLoginFailed(provider, ipAddress, kind string) {
	a.LogEvent(Event{
		Type:      EventLoginFailed,
		Provider:  provider,
		IPAddress: ipAddress,
		Details:   map[string]any{"kind": kind},
	})
}

// LogStateMismatch logs a callback whose state did not match the session nonce
func (a *Auditor) LogStateMismatch(provider, ipAddress string) {
	a.LogEvent(Event{Type: EventStateMismatch, Provider: provider, IPAddress: ipAddress})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{Type: EventRateLimitExceeded, IPAddress: ipAddress})
}

// LogUserProvisioned logs a user created from provider claims
func (a *Auditor) LogUserProvisioned(provider string, userID int64) {
	a.LogEvent(Event{Type: EventUserProvisioned, Provider: provider, UserID: formatID(userID)})
}

// LogUserLinked logs an existing user linked to a provider account
func (a *Auditor) LogUserLinked(provider string, userID int64) {
	a.LogEvent(Event{Type: EventUserLinked, Provider: provider, UserID: formatID(userID)})
}

// LogTeamProvisioned logs a team created from provider claims
func (a *Auditor) LogTeamProvisioned(provider string, teamID, captainID int64) {
	a.LogEvent(Event{
		Type:     EventTeamProvisioned,
		Provider: provider,
		UserID:   formatID(captainID),
		Details:  map[string]any{"team_id": teamID},
	})
}

// LogTeamJoined logs a user admitted into a team
func (a *Auditor) LogTeamJoined(provider string, teamID, userID int64) {
	a.LogEvent(Event{
		Type:     EventTeamJoined,
		Provider: provider,
		UserID:   formatID(userID),
		Details:  map[string]any{"team_id": teamID},
	})
}

// LogUserDeleted logs the provider cleanup outcome for a deleted user
func (a *Auditor) LogUserDeleted(userID int64, failedProviders []string) {
	a.LogEvent(Event{
		Type:    EventUserDeleted,
		UserID:  formatID(userID),
		Details: map[string]any{"failed_providers": failedProviders},
	})
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// hashForLogging creates a truncated SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
