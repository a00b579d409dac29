package providers

import (
	"context"

	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

// Provider defines the interface for login identity providers.
type Provider interface {
	// Name returns the provider name (e.g., "mlc")
	Name() string

	// CanLogin reports whether this provider is the platform's active login path.
	// It has no side effects.
	CanLogin(ctx context.Context) (bool, error)

	// OnLogin builds the redirect that starts authentication. nonce is carried
	// in the state parameter unchanged.
	OnLogin(ctx context.Context, nonce string) (*Redirect, error)

	// OnRedirect exchanges an authorization code for a provisioned or linked
	// local user. Failures are terminal and never retried.
	OnRedirect(ctx context.Context, code string) (*storage.User, error)

	// OnDelete is called when a local user is deleted and reports whether the
	// provider finished its cleanup.
	OnDelete(ctx context.Context, user *storage.User) (bool, error)
}

// Redirect tells the host where to send the browser.
type Redirect struct {
	URL string
}

// Profile is the identity a provider returned for an access token.
type Profile struct {
	// ID is the provider subject id
	ID string

	// Name is the display name
	Name string

	// Email is used to match existing local accounts
	Email string

	// Team is nil when the provider reported no team
	Team *TeamClaim
}

// TeamClaim is the team a provider placed the user in.
type TeamClaim struct {
	ID   string
	Name string
}
