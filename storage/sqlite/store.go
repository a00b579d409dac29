package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/sqlite/migrations"
)

const storageType = "sqlite"

// Store provides SQLite-backed persistence for users, teams and settings.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface checks
var (
	_ storage.Store   = (*Store)(nil)
	_ settings.Source = (*Store)(nil)
)

// Open opens and migrates a SQLite store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, logger: slog.Default()}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store.
// Call it before the store is shared.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

const userColumns = `id, name, email, oauth_id, verified, banned, hidden, team_id`

func scanUser(row interface{ Scan(...any) error }) (*storage.User, error) {
	var (
		u       storage.User
		oauthID sql.NullString
		teamID  sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &oauthID, &u.Verified, &u.Banned, &u.Hidden, &teamID); err != nil {
		return nil, err
	}
	u.OAuthID = oauthID.String
	if teamID.Valid {
		id := teamID.Int64
		u.TeamID = &id
	}
	return &u, nil
}

func nullIfEmpty(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetUserByEmail returns the user with the given email or storage.ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (_ *storage.User, err error) {
	ctx, done := s.track(ctx, "get_user_by_email")
	defer func() { done(err) }()

	u, err := scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUser returns the user with the given id or storage.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (_ *storage.User, err error) {
	ctx, done := s.track(ctx, "get_user")
	defer func() { done(err) }()

	u, err := scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateUser inserts the user and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) (err error) {
	ctx, done := s.track(ctx, "create_user")
	defer func() { done(err) }()

	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	user.Email = strings.TrimSpace(user.Email)
	if user.Email == "" {
		return fmt.Errorf("user email cannot be empty")
	}

	var teamID sql.NullInt64
	if user.TeamID != nil {
		teamID = sql.NullInt64{Int64: *user.TeamID, Valid: true}
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (name, email, oauth_id, verified, banned, hidden, team_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, nullIfEmpty(user.OAuthID),
		user.Verified, user.Banned, user.Hidden, teamID,
		time.Now().UTC().UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return nil
}

// LinkUser sets the provider subject id and marks the user verified. It never
// overwrites an existing subject id.
func (s *Store) LinkUser(ctx context.Context, userID int64, oauthID string) (err error) {
	ctx, done := s.track(ctx, "link_user")
	defer func() { done(err) }()

	if oauthID == "" {
		return fmt.Errorf("oauth id cannot be empty")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET oauth_id = ?, verified = 1 WHERE id = ? AND oauth_id IS NULL`,
		oauthID, userID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("link user: %w", storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("link user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link user: %w", err)
	}
	if n == 1 {
		return nil
	}

	if ok, err := s.exists(ctx, `SELECT 1 FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("link user: %w", err)
	} else if !ok {
		return storage.ErrNotFound
	}
	return fmt.Errorf("user %d already linked: %w", userID, storage.ErrConflict)
}

// CountActiveUsers counts users that are neither banned nor hidden.
func (s *Store) CountActiveUsers(ctx context.Context) (_ int, err error) {
	ctx, done := s.track(ctx, "count_active_users")
	defer func() { done(err) }()

	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE banned = 0 AND hidden = 0`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// GetTeamByOAuthID returns the team created for a provider team id.
func (s *Store) GetTeamByOAuthID(ctx context.Context, oauthID string) (_ *storage.Team, err error) {
	ctx, done := s.track(ctx, "get_team_by_oauth_id")
	defer func() { done(err) }()

	if oauthID == "" {
		return nil, storage.ErrNotFound
	}

	var (
		t         storage.Team
		captainID sql.NullInt64
	)
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, oauth_id, captain_id, banned, hidden FROM teams WHERE oauth_id = ?`, oauthID,
	).Scan(&t.ID, &t.Name, &t.OAuthID, &captainID, &t.Banned, &t.Hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	t.CaptainID = captainID.Int64
	return &t, nil
}

// CreateTeam inserts the team and assigns its ID.
func (s *Store) CreateTeam(ctx context.Context, team *storage.Team) (err error) {
	ctx, done := s.track(ctx, "create_team")
	defer func() { done(err) }()

	if team == nil {
		return fmt.Errorf("team cannot be nil")
	}

	captain := sql.NullInt64{Int64: team.CaptainID, Valid: team.CaptainID != 0}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO teams (name, oauth_id, captain_id, banned, hidden, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		team.Name, nullIfEmpty(team.OAuthID), captain, team.Banned, team.Hidden,
		time.Now().UTC().UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create team: %w", storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	team.ID = id
	return nil
}

// CountActiveTeams counts teams that are neither banned nor hidden.
func (s *Store) CountActiveTeams(ctx context.Context) (_ int, err error) {
	ctx, done := s.track(ctx, "count_active_teams")
	defer func() { done(err) }()

	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM teams WHERE banned = 0 AND hidden = 0`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count teams: %w", err)
	}
	return n, nil
}

// CountTeamMembers counts the users that belong to the team.
func (s *Store) CountTeamMembers(ctx context.Context, teamID int64) (_ int, err error) {
	ctx, done := s.track(ctx, "count_team_members")
	defer func() { done(err) }()

	if ok, err := s.exists(ctx, `SELECT 1 FROM teams WHERE id = ?`, teamID); err != nil {
		return 0, fmt.Errorf("count team members: %w", err)
	} else if !ok {
		return 0, storage.ErrNotFound
	}

	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE team_id = ?`, teamID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count team members: %w", err)
	}
	return n, nil
}

// AddTeamMember admits the user into the team.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) (err error) {
	ctx, done := s.track(ctx, "add_team_member")
	defer func() { done(err) }()

	if ok, err := s.exists(ctx, `SELECT 1 FROM teams WHERE id = ?`, teamID); err != nil {
		return fmt.Errorf("add team member: %w", err)
	} else if !ok {
		return storage.ErrNotFound
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET team_id = ? WHERE id = ? AND (team_id IS NULL OR team_id = ?)`,
		teamID, userID, teamID,
	)
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	if n == 1 {
		return nil
	}

	if ok, err := s.exists(ctx, `SELECT 1 FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("add team member: %w", err)
	} else if !ok {
		return storage.ErrNotFound
	}
	return fmt.Errorf("user %d already on another team: %w", userID, storage.ErrConflict)
}

// GetSetting returns the stored value for key, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (_ string, err error) {
	ctx, done := s.track(ctx, "get_setting")
	defer func() { done(err) }()

	var v string
	err = s.sqlDB.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores value under key. An empty value removes the key.
func (s *Store) SetSetting(ctx context.Context, key, value string) (err error) {
	ctx, done := s.track(ctx, "set_setting")
	defer func() { done(err) }()

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key is required")
	}

	if value == "" {
		_, err = s.sqlDB.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	} else {
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO config (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		)
	}
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// Settings returns every stored setting.
func (s *Store) Settings(ctx context.Context) (_ map[string]string, err error) {
	ctx, done := s.track(ctx, "list_settings")
	defer func() { done(err) }()

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("list settings: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// track starts a storage span and returns a func that ends it and records
// the operation's outcome.
func (s *Store) track(ctx context.Context, operation string) (context.Context, func(error)) {
	if s.instrumentation == nil {
		return ctx, func(error) {}
	}

	span := trace.SpanFromContext(ctx)
	started := s.tracer != nil
	if started {
		ctx, span = s.tracer.Start(ctx, "storage."+operation)
		instrumentation.AddStorageAttributes(span, operation, storageType)
	}
	start := time.Now()

	return ctx, func(err error) {
		result := "success"
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			result = "error"
		}
		if started {
			if result == "error" {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}
		s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(start).Milliseconds()))
	}
}
