package security

// Event type constants for security audit logging.
const (
	// Login flow events

	// EventLoginStarted is logged when a browser is sent to a provider
	EventLoginStarted = "login_started"

	// EventLoginSucceeded is logged when a callback resolves to a local user
	EventLoginSucceeded = "login_succeeded"

	// EventLoginFailed is logged when a callback ends in an error
	EventLoginFailed = "login_failed"

	// EventStateMismatch is logged when the callback state does not match the session nonce
	EventStateMismatch = "state_mismatch"

	// EventRateLimitExceeded is logged when a callback is rejected by the rate limiter
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Provisioning events

	// EventUserProvisioned is logged when a user is created from provider claims
	EventUserProvisioned = "user_provisioned"

	// EventUserLinked is logged when an existing user is linked to a provider account
	EventUserLinked = "user_linked"

	// EventTeamProvisioned is logged when a team is created from provider claims
	EventTeamProvisioned = "team_provisioned"

	// EventTeamJoined is logged when a user is admitted into a team
	EventTeamJoined = "team_joined"

	// EventUserDeleted is logged when provider cleanup hooks run for a deleted user
	EventUserDeleted = "user_deleted"
)
