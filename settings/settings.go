package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Stored setting keys.
const (
	KeyAuthorizationEndpoint  = "oauth_authorization_endpoint"
	KeyTokenEndpoint          = "oauth_token_endpoint"
	KeyAPIEndpoint            = "oauth_api_endpoint"
	KeyClientID               = "oauth_client_id"
	KeyClientSecret           = "oauth_client_secret"
	KeyRegistrationVisibility = "registration_visibility"
	KeyUserMode               = "user_mode"
	KeyNumUsers               = "num_users"
	KeyNumTeams               = "num_teams"
	KeyTeamSize               = "team_size"
)

// Values of KeyUserMode.
const (
	UserModeUsers = "users"
	UserModeTeams = "teams"
)

// Values of KeyRegistrationVisibility.
const (
	RegistrationPublic  = "public"
	RegistrationPrivate = "private"
	RegistrationMLC     = "mlc"
)

// Source is the stored runtime settings layer.
type Source interface {
	// GetSetting returns the stored value for key, or "" when unset.
	GetSetting(ctx context.Context, key string) (string, error)
}

// Overrides are deployment-time values that win over stored settings.
type Overrides struct {
	AuthorizationEndpoint string `env:"OAUTH_AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string `env:"OAUTH_TOKEN_ENDPOINT"`
	APIEndpoint           string `env:"OAUTH_API_ENDPOINT"`
	ClientID              string `env:"OAUTH_CLIENT_ID"`
	ClientSecret          string `env:"OAUTH_CLIENT_SECRET"`
}

// LoadOverrides reads Overrides from the process environment.
func LoadOverrides() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse oauth overrides: %w", err)
	}
	return o, nil
}

// Setting names a value that may be overridden at deployment time.
type Setting struct {
	// Key is the stored setting key.
	Key string

	override func(Overrides) string
}

// Overridable settings.
var (
	AuthorizationEndpoint = Setting{Key: KeyAuthorizationEndpoint, override: func(o Overrides) string { return o.AuthorizationEndpoint }}
	TokenEndpoint         = Setting{Key: KeyTokenEndpoint, override: func(o Overrides) string { return o.TokenEndpoint }}
	APIEndpoint           = Setting{Key: KeyAPIEndpoint, override: func(o Overrides) string { return o.APIEndpoint }}
	ClientID              = Setting{Key: KeyClientID, override: func(o Overrides) string { return o.ClientID }}
	ClientSecret          = Setting{Key: KeyClientSecret, override: func(o Overrides) string { return o.ClientSecret }}
)

// Layered resolves settings across overrides, stored values and defaults.
type Layered struct {
	overrides Overrides
	stored    Source
}

// NewLayered builds a resolver. A nil stored source behaves as an empty one.
func NewLayered(overrides Overrides, stored Source) *Layered {
	return &Layered{overrides: overrides, stored: stored}
}

// Resolve returns the first non-empty value among the override, the stored
// setting and def.
func (l *Layered) Resolve(ctx context.Context, s Setting, def string) (string, error) {
	if s.override != nil {
		if v := strings.TrimSpace(s.override(l.overrides)); v != "" {
			return v, nil
		}
	}
	v, err := l.Stored(ctx, s.Key)
	if err != nil {
		return "", err
	}
	if v != "" {
		return v, nil
	}
	return def, nil
}

// Stored returns the stored value for key with surrounding space removed.
func (l *Layered) Stored(ctx context.Context, key string) (string, error) {
	if l.stored == nil {
		return "", nil
	}
	v, err := l.stored.GetSetting(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return strings.TrimSpace(v), nil
}

// Limit returns a numeric limit setting. Unset means 0 (unlimited).
func (l *Layered) Limit(ctx context.Context, key string) (int, error) {
	v, err := l.Stored(ctx, key)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("setting %s: %q is not a non-negative integer", key, v)
	}
	return n, nil
}

// TeamsMode reports whether the platform runs in teams mode.
func (l *Layered) TeamsMode(ctx context.Context) (bool, error) {
	v, err := l.Stored(ctx, KeyUserMode)
	if err != nil {
		return false, err
	}
	return v == UserModeTeams, nil
}

// RegistrationVisibility returns the stored registration visibility.
func (l *Layered) RegistrationVisibility(ctx context.Context) (string, error) {
	return l.Stored(ctx, KeyRegistrationVisibility)
}

// PublicRegistration reports whether anyone may register an account.
func (l *Layered) PublicRegistration(ctx context.Context) (bool, error) {
	v, err := l.RegistrationVisibility(ctx)
	if err != nil {
		return false, err
	}
	return v == RegistrationPublic, nil
}
