// Package instrumentation provides OpenTelemetry instrumentation for the login providers.
//
// It hands out meters and tracers per layer ("http", "provider", "provisioning",
// "storage", "security") and a Metrics holder with pre-built instruments.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "mlc-login",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		MetricExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	http.Handle("/metrics", inst.MetricsHandler())
//
// With Enabled set to false every provider is a no-op and recording costs nothing.
//
// # Available Metrics
//
// HTTP:
//   - login.http.requests.total{method, endpoint, status}
//   - login.http.request.duration{endpoint}
//
// Login flow:
//   - login.started{provider}
//   - login.callback.processed{provider, success}
//   - login.failures.total{provider, kind}
//
// Provisioning:
//   - provisioning.users.created{provider}
//   - provisioning.users.linked{provider}
//   - provisioning.teams.created{provider}
//   - provisioning.team_members.admitted{provider}
//
// Provider API:
//   - provider.api.calls.total{provider, operation, status}
//   - provider.api.duration{provider, operation}
//   - provider.api.errors.total{provider, operation, error_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//
// Security:
//   - security.rate_limit.exceeded{limiter_type}
//   - security.audit.events.total{event_type}
//
// # Security
//
// Never attach authorization codes, access tokens or client secrets to spans or
// metric attributes. Only metadata (provider name, result, error kind) is recorded.
package instrumentation
