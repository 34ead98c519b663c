package session

import "github.com/pkg/errors"

// AuthError is a failed login or registration. Message is display-ready and,
// when the backend supplied one, is the backend's text verbatim.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// displayMessenger is implemented by transport errors that carry a
// user-facing message.
type displayMessenger interface {
	DisplayMessage() string
}

func newAuthError(err error) *AuthError {
	var dm displayMessenger
	if errors.As(err, &dm) && dm.DisplayMessage() != "" {
		return &AuthError{Message: dm.DisplayMessage(), Err: err}
	}
	return &AuthError{Message: err.Error(), Err: err}
}
