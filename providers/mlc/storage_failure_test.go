package mlc

import (
	"context"
	"errors"
	"testing"

	"github.com/miyoyo/CTFd-BetterPlugins/internal/testutil"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/mock"
)

var errStorage = errors.New("database is locked")

func newMockStoreProvider(t *testing.T, userMode string) (*Provider, *mock.Store, *testutil.FakeMLC) {
	t.Helper()

	fake := testutil.NewFakeMLC(t)
	store := mock.New()
	p, err := NewProvider(&Config{
		Settings: settings.NewLayered(settings.Overrides{}, settings.NewMemory(map[string]string{
			settings.KeyAuthorizationEndpoint:  fake.AuthorizeURL(),
			settings.KeyTokenEndpoint:          fake.TokenURL(),
			settings.KeyAPIEndpoint:            fake.ProfileURL(),
			settings.KeyClientID:               "client-id",
			settings.KeyClientSecret:           "client-secret",
			settings.KeyRegistrationVisibility: settings.RegistrationPublic,
			settings.KeyUserMode:               userMode,
			settings.KeyNumUsers:               "100",
		})),
		Store:      store,
		Sessions:   store,
		HTTPClient: fake.Server.Client(),
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p, store, fake
}

func TestOnRedirect_StorageFailures(t *testing.T) {
	tests := []struct {
		name     string
		userMode string
		inject   func(*mock.Store)
		wantUser bool
	}{
		{
			name:     "user lookup",
			userMode: settings.UserModeUsers,
			inject: func(s *mock.Store) {
				s.GetUserByEmailFunc = func(context.Context, string) (*storage.User, error) { return nil, errStorage }
			},
		},
		{
			name:     "user count",
			userMode: settings.UserModeUsers,
			inject: func(s *mock.Store) {
				s.CountActiveUsersFunc = func(context.Context) (int, error) { return 0, errStorage }
			},
		},
		{
			name:     "user insert",
			userMode: settings.UserModeUsers,
			inject: func(s *mock.Store) {
				s.CreateUserFunc = func(context.Context, *storage.User) error { return errStorage }
			},
		},
		{
			name:     "team insert",
			userMode: settings.UserModeTeams,
			inject: func(s *mock.Store) {
				s.CreateTeamFunc = func(context.Context, *storage.Team) error { return errStorage }
			},
			wantUser: true,
		},
		{
			name:     "team session invalidation",
			userMode: settings.UserModeTeams,
			inject: func(s *mock.Store) {
				s.ClearTeamSessionFunc = func(context.Context, int64) error { return errStorage }
			},
			wantUser: true,
		},
		{
			name:     "member insert",
			userMode: settings.UserModeTeams,
			inject: func(s *mock.Store) {
				s.AddTeamMemberFunc = func(context.Context, int64, int64) error { return errStorage }
			},
			wantUser: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, fake := newMockStoreProvider(t, tt.userMode)
			fake.SetProfile(profileBody{ID: 9, Name: "Ada", Email: "ada@example.com", Team: &teamBody{ID: 3, Name: "Red"}})
			tt.inject(store)

			user, err := p.OnRedirect(context.Background(), "code")
			if !errors.Is(err, errStorage) {
				t.Fatalf("OnRedirect() error = %v, want storage error", err)
			}
			if user != nil {
				t.Errorf("OnRedirect() user = %+v, want nil", user)
			}
			var pe *providers.Error
			if errors.As(err, &pe) {
				t.Errorf("storage failures must not be reported as login failures, got kind %s", pe.Kind)
			}

			// a user created before a later step failed is kept
			if got := store.UserCount() == 1; got != tt.wantUser {
				t.Errorf("user persisted = %v, want %v", got, tt.wantUser)
			}
		})
	}
}

func TestOnRedirect_LinkFailure(t *testing.T) {
	p, store, fake := newMockStoreProvider(t, settings.UserModeUsers)
	fake.SetProfile(profileBody{ID: 9, Name: "Ada", Email: "ada@example.com"})

	existing := &storage.User{Name: "Ada", Email: "ada@example.com"}
	if err := store.Store.CreateUser(context.Background(), existing); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	store.LinkUserFunc = func(context.Context, int64, string) error { return errStorage }

	if _, err := p.OnRedirect(context.Background(), "code"); !errors.Is(err, errStorage) {
		t.Fatalf("OnRedirect() error = %v, want storage error", err)
	}
	if store.CallCount("ClearUserSession") != 0 {
		t.Error("session should not be invalidated when linking fails")
	}
}
