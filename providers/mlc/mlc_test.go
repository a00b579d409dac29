package mlc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/internal/testutil"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/security"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/memory"
)

type fixture struct {
	provider *Provider
	store    *memory.Store
	config   *settings.Memory
	fake     *testutil.FakeMLC
}

func newFixture(t *testing.T, values map[string]string) *fixture {
	t.Helper()

	fake := testutil.NewFakeMLC(t)
	base := map[string]string{
		settings.KeyAuthorizationEndpoint:  fake.AuthorizeURL(),
		settings.KeyTokenEndpoint:          fake.TokenURL(),
		settings.KeyAPIEndpoint:            fake.ProfileURL(),
		settings.KeyClientID:               "client-id",
		settings.KeyClientSecret:           "client-secret",
		settings.KeyRegistrationVisibility: settings.RegistrationPublic,
		settings.KeyUserMode:               settings.UserModeUsers,
	}
	for k, v := range values {
		base[k] = v
	}

	config := settings.NewMemory(base)
	store := memory.New()
	p, err := NewProvider(&Config{
		Settings:   settings.NewLayered(settings.Overrides{}, config),
		Store:      store,
		Sessions:   store,
		HTTPClient: fake.Server.Client(),
		Auditor:    security.NewAuditor(nil, false),
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	return &fixture{provider: p, store: store, config: config, fake: fake}
}

func (f *fixture) createUser(t *testing.T, u *storage.User) *storage.User {
	t.Helper()
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func (f *fixture) createTeam(t *testing.T, team *storage.Team, members ...int64) *storage.Team {
	t.Helper()
	ctx := context.Background()
	if err := f.store.CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam() error = %v", err)
	}
	for _, id := range members {
		if err := f.store.AddTeamMember(ctx, team.ID, id); err != nil {
			t.Fatalf("AddTeamMember() error = %v", err)
		}
	}
	return team
}

func TestNewProvider_Validation(t *testing.T) {
	layered := settings.NewLayered(settings.Overrides{}, settings.NewMemory(nil))

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "missing settings", cfg: &Config{Store: memory.New()}},
		{name: "missing store", cfg: &Config{Settings: layered}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Error("NewProvider() should fail")
			}
		})
	}

	p, err := NewProvider(&Config{Settings: layered, Store: memory.New()})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Name() != "mlc" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.httpClient != http.DefaultClient {
		t.Error("HTTPClient should default to http.DefaultClient")
	}
}

func TestProvider_CanLogin(t *testing.T) {
	tests := []struct {
		visibility string
		want       bool
	}{
		{visibility: settings.RegistrationMLC, want: true},
		{visibility: settings.RegistrationPublic, want: false},
		{visibility: settings.RegistrationPrivate, want: false},
		{visibility: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.visibility, func(t *testing.T) {
			f := newFixture(t, map[string]string{settings.KeyRegistrationVisibility: tt.visibility})
			got, err := f.provider.CanLogin(context.Background())
			if err != nil {
				t.Fatalf("CanLogin() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanLogin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProvider_OnLogin(t *testing.T) {
	tests := []struct {
		name     string
		userMode string
		nonce    string
		want     string
	}{
		{
			name:     "users mode",
			userMode: settings.UserModeUsers,
			nonce:    "abc123",
			want:     "?response_type=code&client_id=client-id&scope=profile&state=abc123",
		},
		{
			name:     "teams mode",
			userMode: settings.UserModeTeams,
			nonce:    "abc123",
			want:     "?response_type=code&client_id=client-id&scope=profile+team&state=abc123",
		},
		{
			name:     "nonce is escaped",
			userMode: settings.UserModeUsers,
			nonce:    "a b&c=d/e+f",
			want:     "?response_type=code&client_id=client-id&scope=profile&state=a+b%26c%3Dd%2Fe%2Bf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{settings.KeyUserMode: tt.userMode})

			redirect, err := f.provider.OnLogin(context.Background(), tt.nonce)
			if err != nil {
				t.Fatalf("OnLogin() error = %v", err)
			}
			if want := f.fake.AuthorizeURL() + tt.want; redirect.URL != want {
				t.Errorf("OnLogin() URL = %q, want %q", redirect.URL, want)
			}
		})
	}
}

func TestProvider_OnLogin_NonceRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	nonces := []string{"simple", "with spaces", "sym&bols=?#", "ünïcødé", strings.Repeat("x", 128)}

	for _, nonce := range nonces {
		redirect, err := f.provider.OnLogin(context.Background(), nonce)
		if err != nil {
			t.Fatalf("OnLogin() error = %v", err)
		}
		u, err := url.Parse(redirect.URL)
		if err != nil {
			t.Fatalf("url.Parse() error = %v", err)
		}
		if got := u.Query().Get("state"); got != nonce {
			t.Errorf("state = %q, want %q", got, nonce)
		}
	}
}

func TestProvider_OnLogin_MissingClientID(t *testing.T) {
	f := newFixture(t, map[string]string{settings.KeyClientID: ""})

	redirect, err := f.provider.OnLogin(context.Background(), "nonce")
	if !errors.Is(err, providers.ErrConfiguration) {
		t.Fatalf("OnLogin() error = %v, want ErrConfiguration", err)
	}
	if redirect != nil {
		t.Errorf("OnLogin() redirect = %+v, want nil", redirect)
	}
	if !strings.Contains(err.Error(), "OAuth Settings not configured") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestProvider_OnLogin_EndpointResolution(t *testing.T) {
	mem := settings.NewMemory(map[string]string{settings.KeyClientID: "stored-id"})

	tests := []struct {
		name      string
		overrides settings.Overrides
		stored    string
		wantStart string
	}{
		{
			name:      "default",
			wantStart: DefaultAuthorizationEndpoint + "?",
		},
		{
			name:      "stored",
			stored:    "https://stored.example.com/authorize",
			wantStart: "https://stored.example.com/authorize?",
		},
		{
			name:      "override",
			overrides: settings.Overrides{AuthorizationEndpoint: "https://env.example.com/authorize", ClientID: "env-id"},
			stored:    "https://stored.example.com/authorize",
			wantStart: "https://env.example.com/authorize?response_type=code&client_id=env-id&",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = mem.SetSetting(context.Background(), settings.KeyAuthorizationEndpoint, tt.stored)
			p, err := NewProvider(&Config{
				Settings: settings.NewLayered(tt.overrides, mem),
				Store:    memory.New(),
			})
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}

			redirect, err := p.OnLogin(context.Background(), "n")
			if err != nil {
				t.Fatalf("OnLogin() error = %v", err)
			}
			if !strings.HasPrefix(redirect.URL, tt.wantStart) {
				t.Errorf("OnLogin() URL = %q, want prefix %q", redirect.URL, tt.wantStart)
			}
		})
	}
}

func TestProvider_OnDelete(t *testing.T) {
	f := newFixture(t, nil)
	ok, err := f.provider.OnDelete(context.Background(), &storage.User{ID: 1})
	if err != nil || !ok {
		t.Errorf("OnDelete() = %v, %v; want true, nil", ok, err)
	}
}

func TestProvider_EnsureContextTimeout(t *testing.T) {
	p := &Provider{requestTimeout: time.Second}

	ctx, cancel := p.ensureContextTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline to be applied")
	}

	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()
	ctx2, cancel2 := p.ensureContextTimeout(parent)
	defer cancel2()
	if ctx2 != parent {
		t.Error("existing deadline should be kept")
	}

	p.requestTimeout = 0
	ctx3, cancel3 := p.ensureContextTimeout(context.Background())
	defer cancel3()
	if _, ok := ctx3.Deadline(); ok {
		t.Error("zero timeout should not add a deadline")
	}
}

func TestProvider_WithInstrumentation(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	f := newFixture(t, nil)
	f.provider.instrumentation = inst
	f.provider.tracer = inst.Tracer("providers")
	f.store.SetInstrumentation(inst)

	if _, err := f.provider.OnLogin(context.Background(), "n"); err != nil {
		t.Fatalf("OnLogin() error = %v", err)
	}
	if _, err := f.provider.OnRedirect(context.Background(), "code"); err != nil {
		t.Fatalf("OnRedirect() error = %v", err)
	}

	f.fake.SetTokenStatus(http.StatusBadRequest)
	if _, err := f.provider.OnRedirect(context.Background(), "code"); !errors.Is(err, providers.ErrTokenExchange) {
		t.Errorf("OnRedirect() error = %v, want ErrTokenExchange", err)
	}
}
