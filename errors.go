package oauth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/miyoyo/CTFd-BetterPlugins/providers"
)

// Error codes rendered in ErrorResponse.Error
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeAccessDenied      = "access_denied"
	ErrorCodeLoginFailed       = "login_failed"
	ErrorCodeProviderNotFound  = "provider_not_found"
	ErrorCodeServerError       = "server_error"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// OAuthError is an error that knows how it is rendered to the browser.
type OAuthError struct {
	Code        string // error code (e.g., "invalid_request", "access_denied")
	Description string // human-readable description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common errors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrAccessDenied indicates an operator-imposed limit refused the login
	ErrAccessDenied = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}

	// ErrProviderNotFound indicates no login provider can serve the request
	ErrProviderNotFound = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeProviderNotFound, desc, http.StatusNotFound)
	}

	// ErrRateLimited indicates the client exceeded the callback rate limit
	ErrRateLimited = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)

// errorFor maps a failure from the registry or a provider to its rendering.
//
// Provider failures carry operator-facing messages and are shown as-is. The
// team-count limit goes through the forbidden path; every other provider
// failure, team size included, is a 400 login failure.
func errorFor(err error) *OAuthError {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}

	var pe *providers.Error
	if errors.As(err, &pe) {
		if pe.Forbidden() {
			return ErrAccessDenied(pe.Message)
		}
		return NewOAuthError(ErrorCodeLoginFailed, pe.Message, http.StatusBadRequest)
	}

	if errors.Is(err, ErrNoActiveProvider) || errors.Is(err, ErrUnknownProvider) {
		return ErrProviderNotFound(err.Error())
	}

	return ErrServerError("Login failed")
}
