package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/security"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

// Route paths registered by RegisterRoutes
const (
	LoginPath    = "/oauth/login"
	CallbackPath = "/oauth/callback"
)

// Sessions is the host's session capability.
type Sessions interface {
	// Nonce returns the anti-replay value of the caller's session, starting a
	// session if there is none.
	Nonce(w http.ResponseWriter, r *http.Request) (string, error)

	// ValidState reports whether state matches the caller's session nonce.
	ValidState(r *http.Request, state string) bool

	// Login establishes an authenticated session for user.
	Login(w http.ResponseWriter, r *http.Request, user *storage.User) error
}

// noopSpan stands in when tracing is disabled so the caller's span is never ended here.
var noopSpan = trace.SpanFromContext(context.Background())

// Handler is a thin HTTP adapter between the browser and the login providers.
type Handler struct {
	registry *Registry
	sessions Sessions
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer
	limiter  *security.RateLimiter
}

// NewHandler creates a new HTTP handler. Call Close to stop the rate limiter.
func NewHandler(registry *Registry, sessions Sessions, cfg *Config) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("sessions are required")
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.applyDefaults()

	h := &Handler{
		registry: registry,
		sessions: sessions,
		config:   c,
		logger:   c.Logger,
	}
	if c.Instrumentation != nil {
		h.tracer = c.Instrumentation.Tracer("http")
	}
	if c.RateLimit.Rate > 0 {
		h.limiter = security.NewRateLimiter(security.RateLimitConfig{
			Rate:            c.RateLimit.Rate,
			Burst:           c.RateLimit.Burst,
			CleanupInterval: c.RateLimit.CleanupInterval,
		}, c.Logger)
	}

	return h, nil
}

// Close releases background resources.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// RegisterRoutes registers the login and callback endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(LoginPath, security.RequestIDMiddleware(http.HandlerFunc(h.ServeLogin)))
	mux.Handle(CallbackPath, security.RequestIDMiddleware(http.HandlerFunc(h.ServeCallback)))
}

// ServeLogin redirects the browser to the provider named by the "provider"
// query parameter, or to the active provider.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.http.login")
	defer span.End()
	r = r.WithContext(ctx)

	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, span, "login", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	provider, err := h.resolveProvider(ctx, r)
	if err != nil {
		h.fail(w, r, span, "login", "", startTime, err)
		return
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, provider.Name()))

	nonce, err := h.sessions.Nonce(w, r)
	if err != nil {
		h.fail(w, r, span, "login", provider.Name(), startTime, fmt.Errorf("session nonce: %w", err))
		return
	}

	redirect, err := provider.OnLogin(ctx, nonce)
	if err != nil {
		h.fail(w, r, span, "login", provider.Name(), startTime, err)
		return
	}

	h.config.Auditor.LogLoginStarted(provider.Name(), h.clientIP(r))
	h.recordHTTPMetrics(ctx, span, "login", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// ServeCallback completes a login: it checks state against the session,
// hands the code to the provider and establishes the session.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.http.callback")
	defer span.End()
	r = r.WithContext(ctx)

	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, span, "callback", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientIP, clientIP))

	if h.limiter != nil && !h.limiter.Allow(clientIP) {
		h.config.Auditor.LogRateLimitExceeded(clientIP)
		if h.config.Instrumentation != nil {
			h.config.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, "ip")
		}
		h.fail(w, r, span, "callback", "", startTime, ErrRateLimited("Too many login attempts, try again later"))
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("Provider returned error", "error", errParam, "description", query.Get("error_description"))
		h.fail(w, r, span, "callback", "", startTime, ErrInvalidRequest("Login was cancelled or refused by the provider"))
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		h.fail(w, r, span, "callback", "", startTime, ErrInvalidRequest("state and code are required"))
		return
	}

	provider, err := h.resolveProvider(ctx, r)
	if err != nil {
		h.fail(w, r, span, "callback", "", startTime, err)
		return
	}
	name := provider.Name()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, name))

	// state is checked before the code is ever sent to the provider
	if !h.sessions.ValidState(r, state) {
		h.config.Auditor.LogStateMismatch(name, clientIP)
		h.fail(w, r, span, "callback", name, startTime, ErrInvalidRequest("Login session expired or state mismatch, please try again"))
		return
	}

	user, err := provider.OnRedirect(ctx, code)
	if err != nil {
		h.fail(w, r, span, "callback", name, startTime, err)
		return
	}

	if err := h.sessions.Login(w, r, user); err != nil {
		h.fail(w, r, span, "callback", name, startTime, fmt.Errorf("establish session: %w", err))
		return
	}

	h.logger.Info("User logged in", "provider", name, "user_id", user.ID)
	h.config.Auditor.LogLoginSucceeded(name, user.ID, clientIP)
	h.recordHTTPMetrics(ctx, span, "callback", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanAttributes(span, attribute.Int64(instrumentation.AttrUserID, user.ID))
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, h.config.PostLoginRedirect, http.StatusFound)
}

// UserDeleted runs every provider's deletion hook for a removed local user.
func (h *Handler) UserDeleted(ctx context.Context, user *storage.User) error {
	failed, err := h.registry.NotifyDelete(ctx, user)
	if user != nil {
		h.config.Auditor.LogUserDeleted(user.ID, failed)
	}
	if err != nil {
		h.logger.Warn("Provider cleanup failed", "providers", failed, "error", err)
	}
	return err
}

func (h *Handler) resolveProvider(ctx context.Context, r *http.Request) (providers.Provider, error) {
	if name := r.URL.Query().Get("provider"); name != "" {
		return h.registry.Get(name)
	}
	return h.registry.Active(ctx)
}

// fail logs err, records it and renders it as JSON.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, endpoint, provider string, startTime time.Time, err error) {
	ctx := r.Context()
	oe := errorFor(err)

	if oe.Status >= http.StatusInternalServerError {
		h.logger.Error("Login request failed", "endpoint", endpoint, "provider", provider, "error", err)
	} else {
		h.logger.Warn("Login request rejected", "endpoint", endpoint, "provider", provider, "code", oe.Code, "error", err)
	}

	if endpoint == "callback" && provider != "" {
		kind := string(providers.KindOf(err))
		if kind == "" {
			kind = oe.Code
		}
		h.config.Auditor.LogLoginFailed(provider, h.clientIP(r), kind)
	}

	instrumentation.RecordError(span, err)
	h.recordHTTPMetrics(ctx, span, endpoint, r.Method, oe.Status, startTime)
	h.writeError(w, r, oe)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, oe *OAuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oe.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
		RequestID:        security.GetRequestID(r.Context()),
	})
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.config.RateLimit.TrustProxy, h.config.RateLimit.TrustedProxies)
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, noopSpan
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, span trace.Span, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(span, method, endpoint, status)
	if h.config.Instrumentation == nil {
		return
	}
	h.config.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, float64(time.Since(startTime).Milliseconds()))
}
