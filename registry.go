package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

var (
	// ErrNoActiveProvider is returned by Registry.Active when no provider can log users in.
	ErrNoActiveProvider = errors.New("no login provider is active")

	// ErrUnknownProvider is returned by Registry.Get for an unregistered name.
	ErrUnknownProvider = errors.New("unknown login provider")
)

// Registry is the fixed set of login providers, built once at startup.
type Registry struct {
	providers []providers.Provider
	byName    map[string]providers.Provider
}

// NewRegistry builds a registry. Order is significant: Active prefers earlier
// providers. Names must be unique and non-empty.
func NewRegistry(list ...providers.Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]providers.Provider, len(list))}
	for i, p := range list {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("provider %d has an empty name", i)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", name)
		}
		r.byName[name] = p
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (providers.Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []providers.Provider {
	return append([]providers.Provider(nil), r.providers...)
}

// Active returns the first provider whose CanLogin reports true.
func (r *Registry) Active(ctx context.Context) (providers.Provider, error) {
	for _, p := range r.providers {
		ok, err := p.CanLogin(ctx)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		if ok {
			return p, nil
		}
	}
	return nil, ErrNoActiveProvider
}

// NotifyDelete runs every provider's deletion hook, even after a failure.
// It returns the names of providers that did not finish cleanup together
// with their joined errors.
func (r *Registry) NotifyDelete(ctx context.Context, user *storage.User) ([]string, error) {
	var (
		failed []string
		errs   []error
	)
	for _, p := range r.providers {
		ok, err := p.OnDelete(ctx, user)
		switch {
		case err != nil:
			failed = append(failed, p.Name())
			errs = append(errs, fmt.Errorf("provider %s: %w", p.Name(), err))
		case !ok:
			failed = append(failed, p.Name())
			errs = append(errs, fmt.Errorf("provider %s: cleanup incomplete", p.Name()))
		}
	}
	return failed, errors.Join(errs...)
}
