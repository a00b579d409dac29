package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used by the login flow
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Login Flow Metrics
	LoginStarted      metric.Int64Counter
	CallbackProcessed metric.Int64Counter
	LoginFailures     metric.Int64Counter

	// Provisioning Metrics
	UsersProvisioned    metric.Int64Counter
	UsersLinked         metric.Int64Counter
	TeamsProvisioned    metric.Int64Counter
	TeamMembersAdmitted metric.Int64Counter

	// Provider Metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter
}

type counterSpec struct {
	target      *metric.Int64Counter
	name        string
	description string
	unit        string
}

type histogramSpec struct {
	target      *metric.Float64Histogram
	name        string
	description string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	counters := map[string][]counterSpec{
		"http": {
			{&m.HTTPRequestsTotal, "login.http.requests.total", "Total number of HTTP requests", "{request}"},
		},
		"provider": {
			{&m.LoginStarted, "login.started", "Number of login redirects issued", "{login}"},
			{&m.CallbackProcessed, "login.callback.processed", "Number of provider callbacks processed", "{callback}"},
			{&m.LoginFailures, "login.failures.total", "Number of failed login attempts by error kind", "{failure}"},
			{&m.ProviderAPICallsTotal, "provider.api.calls.total", "Total number of provider API calls", "{call}"},
			{&m.ProviderAPIErrors, "provider.api.errors.total", "Total number of provider API errors", "{error}"},
		},
		"provisioning": {
			{&m.UsersProvisioned, "provisioning.users.created", "Number of users created from provider claims", "{user}"},
			{&m.UsersLinked, "provisioning.users.linked", "Number of existing users linked to a provider account", "{user}"},
			{&m.TeamsProvisioned, "provisioning.teams.created", "Number of teams created from provider claims", "{team}"},
			{&m.TeamMembersAdmitted, "provisioning.team_members.admitted", "Number of users admitted into a team", "{member}"},
		},
		"storage": {
			{&m.StorageOperationTotal, "storage.operation.total", "Total number of storage operations", "{operation}"},
		},
		"security": {
			{&m.RateLimitExceeded, "security.rate_limit.exceeded", "Number of rate limit violations", "{violation}"},
			{&m.AuditEventsTotal, "security.audit.events.total", "Total number of audit events", "{event}"},
		},
	}

	histograms := map[string][]histogramSpec{
		"http":     {{&m.HTTPRequestDuration, "login.http.request.duration", "HTTP request duration in milliseconds"}},
		"provider": {{&m.ProviderAPIDuration, "provider.api.duration", "Provider API call duration in milliseconds"}},
		"storage":  {{&m.StorageOperationDuration, "storage.operation.duration", "Storage operation duration in milliseconds"}},
	}

	for scope, specs := range counters {
		meter := inst.Meter(scope)
		for _, spec := range specs {
			c, err := meter.Int64Counter(spec.name,
				metric.WithDescription(spec.description),
				metric.WithUnit(spec.unit),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s counter: %w", spec.name, err)
			}
			*spec.target = c
		}
	}

	for scope, specs := range histograms {
		meter := inst.Meter(scope)
		for _, spec := range specs {
			h, err := meter.Float64Histogram(spec.name,
				metric.WithDescription(spec.description),
				metric.WithUnit("ms"),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s histogram: %w", spec.name, err)
			}
			*spec.target = h
		}
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordLoginStarted records a login redirect issued for a provider
func (m *Metrics) RecordLoginStarted(ctx context.Context, provider string) {
	m.LoginStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordCallbackProcessed records a provider callback processing
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, success bool) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// RecordLoginFailure records a failed login attempt. kind is the provider
// error kind, or "internal" for errors outside the taxonomy.
func (m *Metrics) RecordLoginFailure(ctx context.Context, provider, kind string) {
	m.LoginFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordUserProvisioned records a user created from provider claims
func (m *Metrics) RecordUserProvisioned(ctx context.Context, provider string) {
	m.UsersProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordUserLinked records an existing user linked to a provider account
func (m *Metrics) RecordUserLinked(ctx context.Context, provider string) {
	m.UsersLinked.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordTeamProvisioned records a team created from provider claims
func (m *Metrics) RecordTeamProvisioned(ctx context.Context, provider string) {
	m.TeamsProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordTeamMemberAdmitted records a user admitted into a team
func (m *Metrics) RecordTeamMemberAdmitted(ctx context.Context, provider string) {
	m.TeamMembersAdmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordProviderAPICall records a provider API call
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, statusCode int, durationMs float64, err error) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))

	if err != nil {
		errorType := "unknown"
		if statusCode >= 400 && statusCode < 500 {
			errorType = "client_error"
		} else if statusCode >= 500 {
			errorType = "server_error"
		}

		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
