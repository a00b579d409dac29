package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func requestWith(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}

func TestManager_NonceIsStablePerSession(t *testing.T) {
	m := New(Config{})

	rec := httptest.NewRecorder()
	nonce, err := m.Nonce(rec, requestWith(nil))
	if err != nil {
		t.Fatalf("Nonce() error = %v", err)
	}
	c := cookieFrom(t, rec)
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags = HttpOnly %v SameSite %v", c.HttpOnly, c.SameSite)
	}

	again, err := m.Nonce(httptest.NewRecorder(), requestWith(c))
	if err != nil {
		t.Fatalf("Nonce() error = %v", err)
	}
	if again != nonce {
		t.Error("nonce should be stable within a session")
	}

	other, _ := m.Nonce(httptest.NewRecorder(), requestWith(nil))
	if other == nonce {
		t.Error("separate sessions should get separate nonces")
	}
}

func TestManager_ValidState(t *testing.T) {
	m := New(Config{})
	rec := httptest.NewRecorder()
	nonce, _ := m.Nonce(rec, requestWith(nil))
	c := cookieFrom(t, rec)

	tests := []struct {
		name   string
		cookie *http.Cookie
		state  string
		want   bool
	}{
		{name: "match", cookie: c, state: nonce, want: true},
		{name: "mismatch", cookie: c, state: nonce + "x"},
		{name: "empty", cookie: c, state: ""},
		{name: "no session", cookie: nil, state: nonce},
		{name: "unknown session", cookie: &http.Cookie{Name: DefaultCookieName, Value: "forged"}, state: nonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.ValidState(requestWith(tt.cookie), tt.state); got != tt.want {
				t.Errorf("ValidState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_Expiry(t *testing.T) {
	m := New(Config{TTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	nonce, _ := m.Nonce(rec, requestWith(nil))
	c := cookieFrom(t, rec)

	now = now.Add(2 * time.Minute)
	if m.ValidState(requestWith(c), nonce) {
		t.Error("expired session should not validate")
	}
}

func TestManager_LoginRotatesSession(t *testing.T) {
	m := New(Config{})
	rec := httptest.NewRecorder()
	nonce, _ := m.Nonce(rec, requestWith(nil))
	old := cookieFrom(t, rec)

	teamID := int64(3)
	user := &storage.User{ID: 7, Email: "a@example.com", TeamID: &teamID}

	loginRec := httptest.NewRecorder()
	if err := m.Login(loginRec, requestWith(old), user); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	fresh := cookieFrom(t, loginRec)
	if fresh.Value == old.Value {
		t.Error("Login() should issue a new session id")
	}
	if m.ValidState(requestWith(old), nonce) {
		t.Error("old session should be gone after login")
	}

	id, ok := m.CurrentUser(requestWith(fresh))
	if !ok || id != 7 {
		t.Errorf("CurrentUser() = %d, %v", id, ok)
	}
	if _, ok := m.CurrentUser(requestWith(old)); ok {
		t.Error("old cookie should not be authenticated")
	}
	if err := m.Login(httptest.NewRecorder(), requestWith(nil), nil); err == nil {
		t.Error("Login(nil) should fail")
	}
}

func TestManager_SessionCache(t *testing.T) {
	ctx := context.Background()
	m := New(Config{})

	teamA, teamB := int64(1), int64(2)
	for _, u := range []*storage.User{
		{ID: 1, TeamID: &teamA},
		{ID: 2, TeamID: &teamA},
		{ID: 3, TeamID: &teamB},
		{ID: 4},
	} {
		if err := m.Login(httptest.NewRecorder(), requestWith(nil), u); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}

	_ = m.ClearTeamSession(ctx, teamA)
	for id, want := range map[int64]bool{1: false, 2: false, 3: true, 4: true} {
		if _, ok := m.CachedUser(id); ok != want {
			t.Errorf("CachedUser(%d) present = %v, want %v", id, ok, want)
		}
	}

	_ = m.ClearUserSession(ctx, 4)
	if _, ok := m.CachedUser(4); ok {
		t.Error("ClearUserSession() should drop the cached user")
	}
}
