// Package session implements the host session capability for standalone
// deployments: a cookie-held session id, one login nonce per session, and a
// cache of logged-in user records that provisioning can invalidate.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

const (
	// DefaultCookieName is used when Config.CookieName is empty.
	DefaultCookieName = "mlc_session"

	// DefaultTTL is used when Config.TTL is zero.
	DefaultTTL = 24 * time.Hour
)

// Config configures a Manager.
type Config struct {
	CookieName string
	TTL        time.Duration

	// Secure marks the cookie as HTTPS-only.
	Secure bool

	Logger *slog.Logger
}

type entry struct {
	nonce   string
	userID  int64
	expires time.Time
}

// Manager keeps sessions in memory. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	users    map[int64]*storage.User
}

var _ storage.SessionCache = (*Manager)(nil)

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
		users:    make(map[int64]*storage.User),
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// lookup returns the live session for r. Callers hold mu.
func (m *Manager) lookup(r *http.Request) (string, *entry) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return "", nil
	}
	e, ok := m.sessions[c.Value]
	if !ok {
		return "", nil
	}
	if m.now().After(e.expires) {
		delete(m.sessions, c.Value)
		return "", nil
	}
	return c.Value, e
}

// start creates a session and sets its cookie. Callers hold mu.
func (m *Manager) start(w http.ResponseWriter) (*entry, error) {
	id, err := randomToken()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}
	e := &entry{nonce: nonce, expires: m.now().Add(m.cfg.TTL)}
	m.sessions[id] = e

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		Expires:  e.expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return e, nil
}

// Nonce returns the session's login nonce, starting a session if needed.
func (m *Manager) Nonce(w http.ResponseWriter, r *http.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, e := m.lookup(r); e != nil {
		return e.nonce, nil
	}
	e, err := m.start(w)
	if err != nil {
		return "", err
	}
	return e.nonce, nil
}

// ValidState reports whether state equals the session's nonce.
func (m *Manager) ValidState(r *http.Request, state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, e := m.lookup(r)
	if e == nil || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e.nonce), []byte(state)) == 1
}

// Login replaces the caller's session with an authenticated one for user.
// The old session id and nonce are discarded.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, user *storage.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, e := m.lookup(r); e != nil {
		delete(m.sessions, id)
	}
	e, err := m.start(w)
	if err != nil {
		return err
	}
	e.userID = user.ID

	cached := *user
	m.users[user.ID] = &cached

	m.logger.Debug("Session established", "user_id", user.ID)
	return nil
}

// CurrentUser returns the user id of an authenticated session.
func (m *Manager) CurrentUser(r *http.Request) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, e := m.lookup(r)
	if e == nil || e.userID == 0 {
		return 0, false
	}
	return e.userID, true
}

// CachedUser returns the cached record for a logged-in user.
func (m *Manager) CachedUser(userID int64) (*storage.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, false
	}
	c := *u
	return &c, true
}

// ClearUserSession drops the cached record for a user.
func (m *Manager) ClearUserSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

// ClearTeamSession drops the cached records of every member of a team.
func (m *Manager) ClearTeamSession(_ context.Context, teamID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			delete(m.users, id)
		}
	}
	return nil
}
