// Package mock provides a configurable Provider for testing hosts of the
// providers interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

var _ providers.Provider = (*MockProvider)(nil)

// MockProvider is a mock implementation of the Provider interface for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// CanLoginFunc is called when CanLogin() is invoked
	CanLoginFunc func(ctx context.Context) (bool, error)

	// OnLoginFunc is called when OnLogin() is invoked
	OnLoginFunc func(ctx context.Context, nonce string) (*providers.Redirect, error)

	// OnRedirectFunc is called when OnRedirect() is invoked
	OnRedirectFunc func(ctx context.Context, code string) (*storage.User, error)

	// OnDeleteFunc is called when OnDelete() is invoked
	OnDeleteFunc func(ctx context.Context, user *storage.User) (bool, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		CanLoginFunc: func(ctx context.Context) (bool, error) {
			return true, nil
		},
		OnLoginFunc: func(ctx context.Context, nonce string) (*providers.Redirect, error) {
			return &providers.Redirect{URL: "https://mock.example.com/authorize?state=" + nonce}, nil
		},
		OnRedirectFunc: func(ctx context.Context, code string) (*storage.User, error) {
			return &storage.User{
				ID:       1,
				Name:     "Mock User",
				Email:    "mock@example.com",
				OAuthID:  "mock-user-123",
				Verified: true,
			}, nil
		},
		OnDeleteFunc: func(ctx context.Context, user *storage.User) (bool, error) {
			return true, nil
		},
	}
}

// count records a call and returns the configured function. The lock is
// released before the function runs since it may call back into the mock.
func count[F any](m *MockProvider, method string, fn *F) F {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
	return *fn
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	fn := count(m, "Name", &m.NameFunc)
	if fn == nil {
		return "mock"
	}
	return fn()
}

// CanLogin reports whether the mock is the active login path
func (m *MockProvider) CanLogin(ctx context.Context) (bool, error) {
	fn := count(m, "CanLogin", &m.CanLoginFunc)
	if fn == nil {
		return false, fmt.Errorf("CanLoginFunc not configured")
	}
	return fn(ctx)
}

// OnLogin builds the login redirect
func (m *MockProvider) OnLogin(ctx context.Context, nonce string) (*providers.Redirect, error) {
	fn := count(m, "OnLogin", &m.OnLoginFunc)
	if fn == nil {
		return nil, fmt.Errorf("OnLoginFunc not configured")
	}
	return fn(ctx, nonce)
}

// OnRedirect resolves an authorization code to a user
func (m *MockProvider) OnRedirect(ctx context.Context, code string) (*storage.User, error) {
	fn := count(m, "OnRedirect", &m.OnRedirectFunc)
	if fn == nil {
		return nil, fmt.Errorf("OnRedirectFunc not configured")
	}
	return fn(ctx, code)
}

// OnDelete runs the deletion hook
func (m *MockProvider) OnDelete(ctx context.Context, user *storage.User) (bool, error) {
	fn := count(m, "OnDelete", &m.OnDeleteFunc)
	if fn == nil {
		return false, fmt.Errorf("OnDeleteFunc not configured")
	}
	return fn(ctx, user)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
