package oauth

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/providers/mock"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

func namedMock(name string) *mock.MockProvider {
	p := mock.NewMockProvider()
	p.NameFunc = func() string { return name }
	return p
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		list    []providers.Provider
		wantErr bool
	}{
		{name: "empty", list: nil},
		{name: "unique", list: []providers.Provider{namedMock("a"), namedMock("b")}},
		{name: "duplicate", list: []providers.Provider{namedMock("a"), namedMock("a")}, wantErr: true},
		{name: "empty name", list: []providers.Provider{namedMock("")}, wantErr: true},
		{name: "nil provider", list: []providers.Provider{nil}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.list...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	a := namedMock("a")
	r, err := NewRegistry(a, namedMock("b"))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got, err := r.Get("a")
	if err != nil || got != providers.Provider(a) {
		t.Errorf("Get(a) = %v, %v", got, err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(missing) error = %v, want ErrUnknownProvider", err)
	}

	var names []string
	for _, p := range r.Providers() {
		names = append(names, p.Name())
	}
	if !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("Providers() = %v, want registration order", names)
	}
}

func TestRegistry_Active(t *testing.T) {
	closed := namedMock("closed")
	closed.CanLoginFunc = func(context.Context) (bool, error) { return false, nil }
	open := namedMock("open")

	r, _ := NewRegistry(closed, open)
	got, err := r.Active(context.Background())
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got.Name() != "open" {
		t.Errorf("Active() = %s, want open", got.Name())
	}

	r, _ = NewRegistry(closed)
	if _, err := r.Active(context.Background()); !errors.Is(err, ErrNoActiveProvider) {
		t.Errorf("Active() error = %v, want ErrNoActiveProvider", err)
	}

	broken := namedMock("broken")
	settingsErr := errors.New("settings unavailable")
	broken.CanLoginFunc = func(context.Context) (bool, error) { return false, settingsErr }
	r, _ = NewRegistry(broken, open)
	if _, err := r.Active(context.Background()); !errors.Is(err, settingsErr) {
		t.Errorf("Active() error = %v, want settings error", err)
	}
}

func TestRegistry_NotifyDelete(t *testing.T) {
	user := &storage.User{ID: 5}

	refuses := namedMock("refuses")
	refuses.OnDeleteFunc = func(context.Context, *storage.User) (bool, error) { return false, nil }
	errs := namedMock("errs")
	errs.OnDeleteFunc = func(context.Context, *storage.User) (bool, error) { return false, errors.New("boom") }
	fine := namedMock("fine")

	r, _ := NewRegistry(refuses, errs, fine)
	failed, err := r.NotifyDelete(context.Background(), user)
	if err == nil {
		t.Fatal("NotifyDelete() should return an error")
	}
	if !slices.Equal(failed, []string{"refuses", "errs"}) {
		t.Errorf("failed = %v, want [refuses errs]", failed)
	}
	if fine.GetCallCount("OnDelete") != 1 {
		t.Error("every provider should be notified")
	}

	r, _ = NewRegistry(fine)
	failed, err = r.NotifyDelete(context.Background(), user)
	if err != nil || len(failed) != 0 {
		t.Errorf("NotifyDelete() = %v, %v; want no failures", failed, err)
	}
}
