// Package providers defines the contract every login identity provider implements.
//
// A provider takes part in four moments of an account's life:
//   - CanLogin: whether it is the platform's active login path right now
//   - OnLogin: where to send the browser to authenticate
//   - OnRedirect: turning the callback's authorization code into a local user,
//     provisioning or linking records on the way
//   - OnDelete: cleanup when a local user is removed
//
// Failures are reported as *Error values tagged with an ErrorKind, so callers
// can match them with errors.Is against the Err* sentinels:
//
//	user, err := provider.OnRedirect(ctx, code)
//	if errors.Is(err, providers.ErrUserLimit) {
//	    // registration is full
//	}
//
// Implementations are provided in subpackages:
//   - providers/mlc: Major League Cyber
//   - providers/mock: configurable provider for tests
//
// UnimplementedProvider can be embedded by partial implementations; each of
// its methods fails with ErrNotImplemented instead of returning a default.
package providers
