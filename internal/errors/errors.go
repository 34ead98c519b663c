package errors

import "errors"

// Common error values shared by the session client packages
var (
	// Session errors
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrCorruptedState = errors.New("corrupted session state")

	// Credential errors
	ErrNoSavedCredentials = errors.New("no saved credentials")
	ErrBadCredentials     = errors.New("saved credentials rejected")
	ErrCaptchaUnavailable = errors.New("captcha unavailable")

	// Re-authentication errors
	ErrAutoLoginFailed = errors.New("auto-login failed")
	ErrQueueFull       = errors.New("re-authentication queue full")

	// Navigation errors
	ErrRedirectLoop = errors.New("navigation redirect loop")
	ErrInvalidPath  = errors.New("invalid navigation path")
)
