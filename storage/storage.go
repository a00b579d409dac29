package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConflict is returned when a write would break a uniqueness or
	// write-once constraint (duplicate email, duplicate oauth id, relinking).
	ErrConflict = errors.New("storage: conflicting record")
)

// User is a local account.
type User struct {
	ID    int64
	Name  string
	Email string

	// OAuthID is the provider subject id. Empty means the account has never
	// been linked. Once set it is never overwritten.
	OAuthID string

	Verified bool
	Banned   bool
	Hidden   bool

	// TeamID is nil until the user joins a team.
	TeamID *int64
}

// Linked reports whether the account carries a provider subject id.
func (u *User) Linked() bool {
	return u.OAuthID != ""
}

// Team is a group of users led by a captain.
type Team struct {
	ID        int64
	Name      string
	OAuthID   string
	CaptainID int64
	Banned    bool
	Hidden    bool
}

// Store is the repository API consumed by login providers.
//
// Every mutating call must be durable when it returns: a later call in the
// same login attempt has to observe the write (a freshly created team must be
// visible to the member count that follows it).
type Store interface {
	// GetUserByEmail returns the user with the given email or ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// CreateUser inserts the user and assigns its ID.
	CreateUser(ctx context.Context, user *User) error

	// LinkUser sets the provider subject id and marks the user verified.
	// Returns ErrConflict if the user is already linked.
	LinkUser(ctx context.Context, userID int64, oauthID string) error

	// CountActiveUsers counts users that are neither banned nor hidden.
	CountActiveUsers(ctx context.Context) (int, error)

	// GetTeamByOAuthID returns the team created for a provider team id or ErrNotFound.
	GetTeamByOAuthID(ctx context.Context, oauthID string) (*Team, error)

	// CreateTeam inserts the team and assigns its ID.
	CreateTeam(ctx context.Context, team *Team) error

	// CountActiveTeams counts teams that are neither banned nor hidden.
	CountActiveTeams(ctx context.Context) (int, error)

	// CountTeamMembers counts the users that belong to the team.
	CountTeamMembers(ctx context.Context, teamID int64) (int, error)

	// AddTeamMember admits the user into the team.
	AddTeamMember(ctx context.Context, teamID, userID int64) error
}

// SessionCache invalidates cached session state held by the host.
type SessionCache interface {
	ClearUserSession(ctx context.Context, userID int64) error
	ClearTeamSession(ctx context.Context, teamID int64) error
}

// NopSessionCache is a SessionCache for hosts that keep no cached session state.
type NopSessionCache struct{}

// ClearUserSession does nothing.
func (NopSessionCache) ClearUserSession(context.Context, int64) error { return nil }

// ClearTeamSession does nothing.
func (NopSessionCache) ClearTeamSession(context.Context, int64) error { return nil }
