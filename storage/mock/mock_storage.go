// Package mock provides a storage.Store for tests that need to inject
// failures into individual repository calls.
package mock

import (
	"context"
	"sync"

	"github.com/miyoyo/CTFd-BetterPlugins/storage"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/memory"
)

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.SessionCache = (*Store)(nil)
)

// Store delegates to an in-memory store unless the matching Func is set.
type Store struct {
	*memory.Store

	GetUserByEmailFunc   func(ctx context.Context, email string) (*storage.User, error)
	CreateUserFunc       func(ctx context.Context, user *storage.User) error
	LinkUserFunc         func(ctx context.Context, userID int64, oauthID string) error
	CountActiveUsersFunc func(ctx context.Context) (int, error)
	GetTeamByOAuthIDFunc func(ctx context.Context, oauthID string) (*storage.Team, error)
	CreateTeamFunc       func(ctx context.Context, team *storage.Team) error
	CountActiveTeamsFunc func(ctx context.Context) (int, error)
	CountTeamMembersFunc func(ctx context.Context, teamID int64) (int, error)
	AddTeamMemberFunc    func(ctx context.Context, teamID, userID int64) error
	ClearUserSessionFunc func(ctx context.Context, userID int64) error
	ClearTeamSessionFunc func(ctx context.Context, teamID int64) error

	mu    sync.Mutex
	calls map[string]int
}

// New returns a Store backed by a fresh memory.Store.
func New() *Store {
	return &Store{Store: memory.New(), calls: make(map[string]int)}
}

func (s *Store) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[method]++
}

// CallCount returns how many times method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	s.record("GetUserByEmail")
	if s.GetUserByEmailFunc != nil {
		return s.GetUserByEmailFunc(ctx, email)
	}
	return s.Store.GetUserByEmail(ctx, email)
}

func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	s.record("CreateUser")
	if s.CreateUserFunc != nil {
		return s.CreateUserFunc(ctx, user)
	}
	return s.Store.CreateUser(ctx, user)
}

func (s *Store) LinkUser(ctx context.Context, userID int64, oauthID string) error {
	s.record("LinkUser")
	if s.LinkUserFunc != nil {
		return s.LinkUserFunc(ctx, userID, oauthID)
	}
	return s.Store.LinkUser(ctx, userID, oauthID)
}

func (s *Store) CountActiveUsers(ctx context.Context) (int, error) {
	s.record("CountActiveUsers")
	if s.CountActiveUsersFunc != nil {
		return s.CountActiveUsersFunc(ctx)
	}
	return s.Store.CountActiveUsers(ctx)
}

func (s *Store) GetTeamByOAuthID(ctx context.Context, oauthID string) (*storage.Team, error) {
	s.record("GetTeamByOAuthID")
	if s.GetTeamByOAuthIDFunc != nil {
		return s.GetTeamByOAuthIDFunc(ctx, oauthID)
	}
	return s.Store.GetTeamByOAuthID(ctx, oauthID)
}

func (s *Store) CreateTeam(ctx context.Context, team *storage.Team) error {
	s.record("CreateTeam")
	if s.CreateTeamFunc != nil {
		return s.CreateTeamFunc(ctx, team)
	}
	return s.Store.CreateTeam(ctx, team)
}

func (s *Store) CountActiveTeams(ctx context.Context) (int, error) {
	s.record("CountActiveTeams")
	if s.CountActiveTeamsFunc != nil {
		return s.CountActiveTeamsFunc(ctx)
	}
	return s.Store.CountActiveTeams(ctx)
}

func (s *Store) CountTeamMembers(ctx context.Context, teamID int64) (int, error) {
	s.record("CountTeamMembers")
	if s.CountTeamMembersFunc != nil {
		return s.CountTeamMembersFunc(ctx, teamID)
	}
	return s.Store.CountTeamMembers(ctx, teamID)
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) error {
	s.record("AddTeamMember")
	if s.AddTeamMemberFunc != nil {
		return s.AddTeamMemberFunc(ctx, teamID, userID)
	}
	return s.Store.AddTeamMember(ctx, teamID, userID)
}

func (s *Store) ClearUserSession(ctx context.Context, userID int64) error {
	s.record("ClearUserSession")
	if s.ClearUserSessionFunc != nil {
		return s.ClearUserSessionFunc(ctx, userID)
	}
	return s.Store.ClearUserSession(ctx, userID)
}

func (s *Store) ClearTeamSession(ctx context.Context, teamID int64) error {
	s.record("ClearTeamSession")
	if s.ClearTeamSessionFunc != nil {
		return s.ClearTeamSessionFunc(ctx, teamID)
	}
	return s.Store.ClearTeamSession(ctx, teamID)
}
