package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Paths served by FakeMLC.
const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
	ProfilePath   = "/user"
)

// FakeMLC is an httptest server speaking the MLC token and profile protocol.
// It is safe for concurrent use.
type FakeMLC struct {
	Server *httptest.Server

	mu            sync.Mutex
	tokenStatus   int
	accessToken   string
	tokenBody     string
	profileStatus int
	profileBody   string

	tokenRequests []url.Values
	profileAuth   []string
}

// NewFakeMLC starts a fake server that issues "test-access-token" and serves
// the profile set with SetProfile. The server is closed when the test ends.
func NewFakeMLC(t testing.TB) *FakeMLC {
	t.Helper()

	f := &FakeMLC{
		tokenStatus:   http.StatusOK,
		accessToken:   "test-access-token",
		profileStatus: http.StatusOK,
		profileBody:   `{"id": 1, "name": "Test User", "email": "test@example.com"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, f.handleToken)
	mux.HandleFunc(ProfilePath, f.handleProfile)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)

	return f
}

// AuthorizeURL returns the authorization endpoint.
func (f *FakeMLC) AuthorizeURL() string { return f.Server.URL + AuthorizePath }

// TokenURL returns the token endpoint.
func (f *FakeMLC) TokenURL() string { return f.Server.URL + TokenPath }

// ProfileURL returns the profile endpoint.
func (f *FakeMLC) ProfileURL() string { return f.Server.URL + ProfilePath }

// SetTokenStatus makes the token endpoint answer with status and no token.
func (f *FakeMLC) SetTokenStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
}

// SetTokenBody replaces the token endpoint's JSON body.
func (f *FakeMLC) SetTokenBody(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenBody = body
}

// SetProfile serves v, encoded as JSON, from the profile endpoint.
func (f *FakeMLC) SetProfile(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.SetProfileBody(string(b))
}

// SetProfileBody serves body verbatim from the profile endpoint.
func (f *FakeMLC) SetProfileBody(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileBody = body
}

// SetProfileStatus sets the profile endpoint's status code.
func (f *FakeMLC) SetProfileStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileStatus = status
}

// TokenRequests returns the form of every token request received.
func (f *FakeMLC) TokenRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenRequests...)
}

// ProfileRequests returns the Authorization header of every profile request.
func (f *FakeMLC) ProfileRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.profileAuth...)
}

func (f *FakeMLC) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenRequests = append(f.tokenRequests, r.PostForm)
	status, token, body := f.tokenStatus, f.accessToken, f.tokenBody
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	if body == "" {
		body = `{"access_token":"` + token + `","token_type":"Bearer"}`
	}
	_, _ = w.Write([]byte(body))
}

func (f *FakeMLC) handleProfile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.profileAuth = append(f.profileAuth, r.Header.Get("Authorization"))
	status, body, token := f.profileStatus, f.profileBody, f.accessToken
	f.mu.Unlock()

	if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
