package security

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_HashesUserID(t *testing.T) {
	auditor, buf := newTestAuditor(true)

	auditor.LogUserProvisioned("mlc", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["event_type"] != EventUserProvisioned {
		t.Errorf("event_type = %v, want %q", entry["event_type"], EventUserProvisioned)
	}
	if entry["user_id_hash"] == "42" {
		t.Error("user id logged in clear text")
	}
	if entry["user_id_hash"] != hashForLogging("42") {
		t.Errorf("user_id_hash = %v, want %q", entry["user_id_hash"], hashForLogging("42"))
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := newTestAuditor(false)

	auditor.LogLoginFailed("mlc", "203.0.113.7", "user_limit")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote %q", buf.String())
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var auditor *Auditor
	auditor.LogLoginStarted("mlc", "203.0.113.7")
}

func TestAuditor_AllEvents(t *testing.T) {
	auditor, buf := newTestAuditor(true)

	auditor.LogLoginStarted("mlc", "203.0.113.7")
	auditor.LogLoginSucceeded("mlc", 1, "203.0.113.7")
	auditor.LogLoginFailed("mlc", "203.0.113.7", "team_full")
	auditor.LogStateMismatch("mlc", "203.0.113.7")
	auditor.LogRateLimitExceeded("203.0.113.7")
	auditor.LogUserLinked("mlc", 1)
	auditor.LogTeamProvisioned("mlc", 3, 1)
	auditor.LogTeamJoined("mlc", 3, 1)
	auditor.LogUserDeleted(1, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 9 {
		t.Errorf("got %d audit lines, want 9", len(lines))
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q", got)
	}
	if got := hashForLogging("user@example.com"); len(got) != 16 {
		t.Errorf("len(hash) = %d, want 16", len(got))
	}
}

func TestSetSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSecurityHeaders(rec, httptest.NewRequest("GET", "http://ctf.example.com/oauth/callback", nil))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options not set")
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
		t.Error("Cache-Control should forbid storing")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	rec = httptest.NewRecorder()
	SetSecurityHeaders(rec, httptest.NewRequest("GET", "https://ctf.example.com/oauth/callback", nil))
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS should be sent over TLS")
	}
}
