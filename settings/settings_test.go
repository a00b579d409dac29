package settings

import (
	"context"
	"errors"
	"testing"
)

type failingSource struct{}

func (failingSource) GetSetting(context.Context, string) (string, error) {
	return "", errors.New("database is locked")
}

func TestLayered_Resolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		overrides Overrides
		stored    map[string]string
		want      string
	}{
		{
			name:      "override wins",
			overrides: Overrides{ClientID: "from-env"},
			stored:    map[string]string{KeyClientID: "from-db"},
			want:      "from-env",
		},
		{
			name:   "stored beats default",
			stored: map[string]string{KeyClientID: "from-db"},
			want:   "from-db",
		},
		{
			name: "default when nothing set",
			want: "fallback",
		},
		{
			name:      "empty values fall through",
			overrides: Overrides{ClientID: "  "},
			stored:    map[string]string{KeyClientID: ""},
			want:      "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayered(tt.overrides, NewMemory(tt.stored))
			got, err := l.Resolve(ctx, ClientID, "fallback")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLayered_ResolveEachOverride(t *testing.T) {
	o := Overrides{
		AuthorizationEndpoint: "https://auth/authorize",
		TokenEndpoint:         "https://auth/token",
		APIEndpoint:           "https://api/user",
		ClientID:              "id",
		ClientSecret:          "secret",
	}
	l := NewLayered(o, nil)

	for s, want := range map[*Setting]string{
		&AuthorizationEndpoint: o.AuthorizationEndpoint,
		&TokenEndpoint:         o.TokenEndpoint,
		&APIEndpoint:           o.APIEndpoint,
		&ClientID:              o.ClientID,
		&ClientSecret:          o.ClientSecret,
	} {
		got, err := l.Resolve(context.Background(), *s, "")
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", s.Key, err)
		}
		if got != want {
			t.Errorf("Resolve(%s) = %q, want %q", s.Key, got, want)
		}
	}
}

func TestLayered_StoredError(t *testing.T) {
	l := NewLayered(Overrides{}, failingSource{})
	if _, err := l.Resolve(context.Background(), TokenEndpoint, "x"); err == nil {
		t.Error("Resolve() should surface stored layer errors")
	}
}

func TestLayered_Limit(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{value: "", want: 0},
		{value: "0", want: 0},
		{value: "5", want: 5},
		{value: " 12 ", want: 12},
		{value: "five", wantErr: true},
		{value: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			l := NewLayered(Overrides{}, NewMemory(map[string]string{KeyNumUsers: tt.value}))
			got, err := l.Limit(context.Background(), KeyNumUsers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Limit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Limit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayered_Modes(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(map[string]string{
		KeyUserMode:               UserModeTeams,
		KeyRegistrationVisibility: RegistrationPublic,
	})
	l := NewLayered(Overrides{}, mem)

	teams, err := l.TeamsMode(ctx)
	if err != nil || !teams {
		t.Errorf("TeamsMode() = %v, %v; want true", teams, err)
	}
	public, err := l.PublicRegistration(ctx)
	if err != nil || !public {
		t.Errorf("PublicRegistration() = %v, %v; want true", public, err)
	}

	_ = mem.SetSetting(ctx, KeyUserMode, UserModeUsers)
	_ = mem.SetSetting(ctx, KeyRegistrationVisibility, RegistrationMLC)

	if teams, _ := l.TeamsMode(ctx); teams {
		t.Error("TeamsMode() should follow stored edits without caching")
	}
	if public, _ := l.PublicRegistration(ctx); public {
		t.Error("PublicRegistration() should be false for mlc visibility")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OAUTH_CLIENT_ID", "env-client")
	t.Setenv("OAUTH_TOKEN_ENDPOINT", "https://example.com/token")

	o, err := LoadOverrides()
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if o.ClientID != "env-client" {
		t.Errorf("ClientID = %q", o.ClientID)
	}
	if o.TokenEndpoint != "https://example.com/token" {
		t.Errorf("TokenEndpoint = %q", o.TokenEndpoint)
	}
	if o.ClientSecret != "" {
		t.Errorf("ClientSecret = %q, want empty", o.ClientSecret)
	}
}

func TestMemory_SetEmptyDeletes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[string]string{KeyTeamSize: "4"})
	_ = m.SetSetting(ctx, KeyTeamSize, "")
	if v, _ := m.GetSetting(ctx, KeyTeamSize); v != "" {
		t.Errorf("GetSetting() = %q after delete", v)
	}
}
