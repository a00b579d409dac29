package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	oauth "github.com/miyoyo/CTFd-BetterPlugins"
	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/internal/session"
	"github.com/miyoyo/CTFd-BetterPlugins/providers/mlc"
	"github.com/miyoyo/CTFd-BetterPlugins/security"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login and callback endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), v, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8000", "listen address for the login endpoints")
	flags.String("metrics-listen", "", "listen address for the Prometheus scrape endpoint (empty disables)")
	flags.String("post-login-redirect", oauth.DefaultPostLoginRedirect, "local path users land on after logging in")
	flags.Duration("upstream-timeout", 10*time.Second, "timeout for each call to the MLC token and profile endpoints (0 disables)")
	flags.Duration("callback-timeout", 30*time.Second, "overall deadline for one login callback (0 disables)")
	flags.Duration("session-ttl", session.DefaultTTL, "lifetime of a browser session")
	flags.Bool("secure-cookies", false, "mark the session cookie Secure (enable behind HTTPS)")
	flags.Float64("rate-limit", 1, "login callbacks per second allowed per client IP (0 disables)")
	flags.Int("rate-burst", 10, "burst of login callbacks allowed per client IP")
	flags.Bool("trust-proxy", false, "derive client IPs from X-Forwarded-For and X-Real-IP")
	flags.Int("trusted-proxies", 1, "number of reverse proxies in front of the server when --trust-proxy is set")
	flags.Bool("audit", true, "log security audit events")
	bindFlags(v, flags,
		"listen", "metrics-listen", "post-login-redirect", "upstream-timeout", "callback-timeout",
		"session-ttl", "secure-cookies", "rate-limit", "rate-burst", "trust-proxy", "trusted-proxies", "audit",
	)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	store, err := sqlite.Open(v.GetString("db"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	store.SetLogger(logger)

	overrides, err := settings.LoadOverrides()
	if err != nil {
		return err
	}

	metricsListen := v.GetString("metrics-listen")
	instCfg := instrumentation.Config{
		ServiceName:    instrumentation.DefaultServiceName,
		ServiceVersion: version,
		Enabled:        metricsListen != "",
	}
	if metricsListen != "" {
		instCfg.MetricExporter = instrumentation.ExporterPrometheus
	}
	inst, err := instrumentation.New(instCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = inst.Shutdown(shutdownCtx)
	}()
	store.SetInstrumentation(inst)

	auditor := security.NewAuditor(logger, v.GetBool("audit"))
	sessions := session.New(session.Config{
		TTL:    v.GetDuration("session-ttl"),
		Secure: v.GetBool("secure-cookies"),
		Logger: logger,
	})

	provider, err := mlc.NewProvider(&mlc.Config{
		Settings:        settings.NewLayered(overrides, store),
		Store:           store,
		Sessions:        sessions,
		HTTPClient:      &http.Client{Timeout: v.GetDuration("upstream-timeout")},
		RequestTimeout:  v.GetDuration("callback-timeout"),
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: inst,
	})
	if err != nil {
		return err
	}

	registry, err := oauth.NewRegistry(provider)
	if err != nil {
		return err
	}

	handler, err := oauth.NewHandler(registry, sessions, &oauth.Config{
		PostLoginRedirect: v.GetString("post-login-redirect"),
		RateLimit: oauth.RateLimitConfig{
			Rate:           v.GetFloat64("rate-limit"),
			Burst:          v.GetInt("rate-burst"),
			TrustProxy:     v.GetBool("trust-proxy"),
			TrustedProxies: v.GetInt("trusted-proxies"),
		},
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: inst,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	servers := []*http.Server{newHTTPServer(v.GetString("listen"), mux, logger)}
	if metricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", inst.MetricsHandler())
		servers = append(servers, newHTTPServer(metricsListen, metricsMux, logger))
	}

	return serveAll(ctx, logger, servers)
}

func newHTTPServer(addr string, h http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// serveAll runs every server until ctx is cancelled or one of them fails,
// then shuts them all down.
func serveAll(ctx context.Context, logger *slog.Logger, servers []*http.Server) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			shutdownAll(logger, servers)
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		logger.Info("Listening", "addr", ln.Addr().String())
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
				return
			}
			errCh <- nil
		}(srv, ln)
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errCh:
	}
	shutdownAll(logger, servers)
	return err
}

func shutdownAll(logger *slog.Logger, servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
}
