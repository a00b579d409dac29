package providers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a login failure.
type ErrorKind string

const (
	KindConfiguration        ErrorKind = "configuration"
	KindTokenExchange        ErrorKind = "token_exchange"
	KindProfile              ErrorKind = "profile"
	KindRegistrationDisabled ErrorKind = "registration_disabled"
	KindUserLimit            ErrorKind = "user_limit"
	KindTeamLimit            ErrorKind = "team_limit"
	KindTeamFull             ErrorKind = "team_full"
)

// Error is a terminal login failure with an operator-facing message.
type Error struct {
	Kind    ErrorKind
	Message string

	// Err is the underlying cause, if any. It is never shown to users.
	Err error
}

// Sentinels for matching with errors.Is. Only the kind is compared.
var (
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrTokenExchange        = &Error{Kind: KindTokenExchange}
	ErrProfile              = &Error{Kind: KindProfile}
	ErrRegistrationDisabled = &Error{Kind: KindRegistrationDisabled}
	ErrUserLimit            = &Error{Kind: KindUserLimit}
	ErrTeamLimit            = &Error{Kind: KindTeamLimit}
	ErrTeamFull             = &Error{Kind: KindTeamFull}
)

// NewError returns an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Forbidden reports whether the failure is an operator-imposed limit that the
// host should render through its forbidden path rather than as a login error.
// Only the team-count limit is reported this way.
func (e *Error) Forbidden() bool {
	return e.Kind == KindTeamLimit
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
