package mlc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/security"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "mlc"

// Default MLC endpoints.
const (
	DefaultAuthorizationEndpoint = "https://auth.majorleaguecyber.org/oauth/authorize"
	DefaultTokenEndpoint         = "https://auth.majorleaguecyber.org/oauth/token"
	DefaultAPIEndpoint           = "https://api.majorleaguecyber.org/user"
)

// Requested scopes.
const (
	scopeProfile      = "profile"
	scopeProfileTeams = "profile team"
)

// Operator-facing failure messages.
const (
	msgNotConfigured       = "OAuth Settings not configured. Ask your CTF administrator to configure MajorLeagueCyber integration."
	msgTokenFailure        = "OAuth token retrieval failure"
	msgProfileFailure      = "OAuth profile retrieval failure"
	msgRegistrationClosed  = "User registration is not enabled"
	msgUserLimitFormat     = "Reached the maximum number of users (%d)."
	msgTeamLimitFormat     = "Reached the maximum number of teams (%d). Please join an existing team."
	msgTeamFullFormat      = "Teams are limited to %s."
	msgProfileMissingClaim = "OAuth profile is missing %s"
)

// Provider implements the providers.Provider interface for Major League Cyber.
type Provider struct {
	settings       *settings.Layered
	store          storage.Store
	sessions       storage.SessionCache
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger
	auditor        *security.Auditor

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Config holds MLC provider configuration.
type Config struct {
	// Settings resolves endpoints, credentials and platform policy. Required.
	Settings *settings.Layered

	// Store persists users and teams. Required.
	Store storage.Store

	// Sessions invalidates cached session state after provisioning.
	// Defaults to storage.NopSessionCache.
	Sessions storage.SessionCache

	// HTTPClient is used for the token exchange and the profile fetch.
	// Defaults to http.DefaultClient; its Timeout bounds each call.
	HTTPClient *http.Client

	// RequestTimeout bounds a whole callback when the caller's context has no
	// deadline. Zero leaves the context untouched.
	RequestTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Auditor records provisioning events. Optional.
	Auditor *security.Auditor

	// Instrumentation records metrics and spans. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// NewProvider creates a new MLC provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	p := &Provider{
		settings:        cfg.Settings,
		store:           cfg.Store,
		sessions:        cfg.Sessions,
		httpClient:      cfg.HTTPClient,
		requestTimeout:  cfg.RequestTimeout,
		logger:          cfg.Logger,
		auditor:         cfg.Auditor,
		instrumentation: cfg.Instrumentation,
	}
	if p.sessions == nil {
		p.sessions = storage.NopSessionCache{}
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("provider", providerName)
	if p.instrumentation != nil {
		p.tracer = p.instrumentation.Tracer("providers")
	}

	return p, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// CanLogin reports whether MLC is the platform's registration path.
func (p *Provider) CanLogin(ctx context.Context) (bool, error) {
	v, err := p.settings.RegistrationVisibility(ctx)
	if err != nil {
		return false, err
	}
	return v == settings.RegistrationMLC, nil
}

// OnLogin builds the authorization redirect. nonce is passed through as the
// state parameter without modification.
func (p *Provider) OnLogin(ctx context.Context, nonce string) (*providers.Redirect, error) {
	ctx, span := p.startSpan(ctx, "mlc.on_login")
	defer span.End()

	endpoint, err := p.settings.Resolve(ctx, settings.AuthorizationEndpoint, DefaultAuthorizationEndpoint)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	clientID, err := p.settings.Resolve(ctx, settings.ClientID, "")
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if clientID == "" {
		err := providers.NewError(providers.KindConfiguration, msgNotConfigured, nil)
		p.recordFailure(ctx, span, err)
		return nil, err
	}

	teams, err := p.settings.TeamsMode(ctx)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	scope := scopeProfile
	if teams {
		scope = scopeProfileTeams
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrScope, scope))
	instrumentation.SetSpanSuccess(span)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordLoginStarted(ctx, providerName)
	}

	return &providers.Redirect{URL: authorizationURL(endpoint, clientID, scope, nonce)}, nil
}

// authorizationURL appends the authorization request parameters in a fixed
// order. url.Values.Encode would sort them.
func authorizationURL(endpoint, clientID, scope, state string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteString(sep)
	b.WriteString("response_type=code")
	b.WriteString("&client_id=" + url.QueryEscape(clientID))
	b.WriteString("&scope=" + url.QueryEscape(scope))
	b.WriteString("&state=" + url.QueryEscape(state))
	return b.String()
}

// OnRedirect exchanges the authorization code, reads the MLC profile and
// provisions or links the matching local user. The first failure ends the
// attempt; nothing is retried.
func (p *Provider) OnRedirect(ctx context.Context, code string) (user *storage.User, err error) {
	ctx, span := p.startSpan(ctx, "mlc.on_redirect")
	defer span.End()

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	defer func() {
		if p.instrumentation != nil {
			p.instrumentation.Metrics().RecordCallbackProcessed(ctx, providerName, err == nil)
		}
		if err != nil {
			p.recordFailure(ctx, span, err)
			return
		}
		instrumentation.SetSpanAttributes(span, attribute.Int64(instrumentation.AttrUserID, user.ID))
		instrumentation.SetSpanSuccess(span)
	}()

	accessToken, err := p.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := p.fetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return p.provision(ctx, profile)
}

// OnDelete has nothing to clean up at MLC.
func (p *Provider) OnDelete(_ context.Context, user *storage.User) (bool, error) {
	if user != nil {
		p.logger.Debug("Local user deleted", "user_id", user.ID)
	}
	return true, nil
}

// ensureContextTimeout applies RequestTimeout when ctx carries no deadline.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || p.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

func (p *Provider) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := p.tracer.Start(ctx, name)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, providerName))
	return ctx, span
}

func (p *Provider) recordFailure(ctx context.Context, span trace.Span, err error) {
	kind := string(providers.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrErrorKind, kind))
	instrumentation.RecordError(span, err)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordLoginFailure(ctx, providerName, kind)
	}

	var pe *providers.Error
	if errors.As(err, &pe) {
		p.logger.Warn("Login failed", "kind", kind, "error", err)
		return
	}
	p.logger.Error("Login failed", "error", err)
}
