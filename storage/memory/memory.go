package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

const storageType = "memory"

// Store is an in-memory user and team store.
type Store struct {
	mu sync.RWMutex

	users       map[int64]*storage.User
	usersByMail map[string]int64
	teams       map[int64]*storage.Team
	nextUserID  int64
	nextTeamID  int64

	clearedUsers []int64
	clearedTeams []int64

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.Store        = (*Store)(nil)
	_ storage.SessionCache = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[int64]*storage.User),
		usersByMail: make(map[string]int64),
		teams:       make(map[int64]*storage.Team),
		logger:      slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u *storage.User) *storage.User {
	c := *u
	if u.TeamID != nil {
		id := *u.TeamID
		c.TeamID = &id
	}
	return &c
}

// GetUserByEmail returns the user with the given email or storage.ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (_ *storage.User, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_user_by_email")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_user_by_email", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByMail[emailKey(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// CreateUser inserts the user and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) (err error) {
	ctx, span := s.startStorageSpan(ctx, "create_user")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "create_user", err, startTime) }()

	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	key := emailKey(user.Email)
	if key == "" {
		return fmt.Errorf("user email cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByMail[key]; exists {
		return fmt.Errorf("email %q: %w", user.Email, storage.ErrConflict)
	}
	if user.OAuthID != "" && s.oauthIDTaken(user.OAuthID) {
		return fmt.Errorf("oauth id already linked: %w", storage.ErrConflict)
	}

	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.ID] = copyUser(user)
	s.usersByMail[key] = user.ID

	s.logger.Debug("Created user", "user_id", user.ID)
	return nil
}

func (s *Store) oauthIDTaken(oauthID string) bool {
	for _, u := range s.users {
		if u.OAuthID == oauthID {
			return true
		}
	}
	return false
}

// LinkUser sets the provider subject id and marks the user verified.
func (s *Store) LinkUser(ctx context.Context, userID int64, oauthID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "link_user")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "link_user", err, startTime) }()

	if oauthID == "" {
		return fmt.Errorf("oauth id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.OAuthID != "" {
		return fmt.Errorf("user %d already linked: %w", userID, storage.ErrConflict)
	}
	if s.oauthIDTaken(oauthID) {
		return fmt.Errorf("oauth id already linked: %w", storage.ErrConflict)
	}
	u.OAuthID = oauthID
	u.Verified = true
	return nil
}

// CountActiveUsers counts users that are neither banned nor hidden.
func (s *Store) CountActiveUsers(ctx context.Context) (_ int, err error) {
	ctx, span := s.startStorageSpan(ctx, "count_active_users")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "count_active_users", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if !u.Banned && !u.Hidden {
			n++
		}
	}
	return n, nil
}

// GetTeamByOAuthID returns the team created for a provider team id.
func (s *Store) GetTeamByOAuthID(ctx context.Context, oauthID string) (_ *storage.Team, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_team_by_oauth_id")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_team_by_oauth_id", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if oauthID == "" {
		return nil, storage.ErrNotFound
	}
	for _, t := range s.teams {
		if t.OAuthID == oauthID {
			c := *t
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

// CreateTeam inserts the team and assigns its ID.
func (s *Store) CreateTeam(ctx context.Context, team *storage.Team) (err error) {
	ctx, span := s.startStorageSpan(ctx, "create_team")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "create_team", err, startTime) }()

	if team == nil {
		return fmt.Errorf("team cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.teams {
		if team.OAuthID != "" && t.OAuthID == team.OAuthID {
			return fmt.Errorf("team oauth id already exists: %w", storage.ErrConflict)
		}
		if t.Name == team.Name {
			return fmt.Errorf("team name %q: %w", team.Name, storage.ErrConflict)
		}
	}

	s.nextTeamID++
	team.ID = s.nextTeamID
	c := *team
	s.teams[team.ID] = &c

	s.logger.Debug("Created team", "team_id", team.ID)
	return nil
}

// CountActiveTeams counts teams that are neither banned nor hidden.
func (s *Store) CountActiveTeams(ctx context.Context) (_ int, err error) {
	ctx, span := s.startStorageSpan(ctx, "count_active_teams")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "count_active_teams", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.teams {
		if !t.Banned && !t.Hidden {
			n++
		}
	}
	return n, nil
}

// CountTeamMembers counts the users that belong to the team.
func (s *Store) CountTeamMembers(ctx context.Context, teamID int64) (_ int, err error) {
	ctx, span := s.startStorageSpan(ctx, "count_team_members")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "count_team_members", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return 0, storage.ErrNotFound
	}
	n := 0
	for _, u := range s.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			n++
		}
	}
	return n, nil
}

// AddTeamMember admits the user into the team.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) (err error) {
	ctx, span := s.startStorageSpan(ctx, "add_team_member")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "add_team_member", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamID]; !ok {
		return storage.ErrNotFound
	}
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.TeamID != nil && *u.TeamID != teamID {
		return fmt.Errorf("user %d already on team %d: %w", userID, *u.TeamID, storage.ErrConflict)
	}
	id := teamID
	u.TeamID = &id
	return nil
}

// ClearUserSession records the invalidation of a user's cached session state.
func (s *Store) ClearUserSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedUsers = append(s.clearedUsers, userID)
	return nil
}

// ClearTeamSession records the invalidation of a team's cached session state.
func (s *Store) ClearTeamSession(_ context.Context, teamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedTeams = append(s.clearedTeams, teamID)
	return nil
}

// ClearedUserSessions returns the user ids passed to ClearUserSession, in order.
func (s *Store) ClearedUserSessions() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.clearedUsers...)
}

// ClearedTeamSessions returns the team ids passed to ClearTeamSession, in order.
func (s *Store) ClearedTeamSessions() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.clearedTeams...)
}

// GetUser returns a user by id.
func (s *Store) GetUser(_ context.Context, id int64) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(u), nil
}

// GetTeam returns a team by id.
func (s *Store) GetTeam(_ context.Context, id int64) (*storage.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *t
	return &c, nil
}

// UserCount returns the number of users regardless of flags.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// TeamCount returns the number of teams regardless of flags.
func (s *Store) TeamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.teams)
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
	instrumentation.AddStorageAttributes(span, operation, storageType)

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()

	if inst == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
