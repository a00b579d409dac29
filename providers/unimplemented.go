package providers

import (
	"context"
	"errors"

	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

// ErrNotImplemented is returned by UnimplementedProvider methods.
var ErrNotImplemented = errors.New("provider method not implemented")

// UnimplementedProvider can be embedded to satisfy Provider while a concrete
// provider is incomplete. Every method fails; none returns a usable default.
type UnimplementedProvider struct{}

var _ Provider = UnimplementedProvider{}

func (UnimplementedProvider) Name() string {
	return "unimplemented"
}

func (UnimplementedProvider) CanLogin(context.Context) (bool, error) {
	return false, ErrNotImplemented
}

func (UnimplementedProvider) OnLogin(context.Context, string) (*Redirect, error) {
	return nil, ErrNotImplemented
}

func (UnimplementedProvider) OnRedirect(context.Context, string) (*storage.User, error) {
	return nil, ErrNotImplemented
}

func (UnimplementedProvider) OnDelete(context.Context, *storage.User) (bool, error) {
	return false, ErrNotImplemented
}
