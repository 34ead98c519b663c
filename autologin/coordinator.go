// Package autologin recovers an expired or missing session from the
// remembered credentials without user interaction.
package autologin

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jrsteele09/campus-session-client/backend"
	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/jrsteele09/campus-session-client/internal/utils"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	flightKey         = "autologin"
	defaultQueueLimit = 1024
)

var defaultBadCredentialKeywords = []string{"密码", "用户名", "password", "username", "credential"}

// State of the most recent attempt.
type State int32

const (
	StateIdle State = iota
	StateInFlight
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Backend is what the coordinator needs besides the login itself.
type Backend interface {
	Captcha(ctx context.Context) (*backend.Captcha, error)
	RefreshToken(ctx context.Context, refreshToken string) (*backend.RefreshResult, error)
}

// Coordinator runs at most one auto-login at a time. Every caller that
// arrives while an attempt is running waits for it and gets its outcome.
type Coordinator struct {
	session               *session.Service
	backend               Backend
	badCredentialKeywords []string
	queueLimit            int64

	group       singleflight.Group
	waiting     atomic.Int64
	state       atomic.Int32
	lastFailure atomic.Pointer[failedAttempt]
}

// failedAttempt is the outcome of the last re-authentication that failed,
// keyed by the token it was meant to replace.
type failedAttempt struct {
	staleToken string
	err        error
}

// covers reports whether a caller holding staleToken is answered by this
// failure. A caller without any token arrives after the failed session was
// cleared.
func (f *failedAttempt) covers(staleToken string) bool {
	return f != nil && (staleToken == "" || staleToken == f.staleToken)
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithBadCredentialKeywords sets the message fragments that mark a login
// failure as a credential problem.
func WithBadCredentialKeywords(keywords []string) CoordinatorOption {
	return func(c *Coordinator) {
		if len(keywords) > 0 {
			c.badCredentialKeywords = keywords
		}
	}
}

// WithQueueLimit bounds how many callers may wait on one attempt.
func WithQueueLimit(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		if limit > 0 {
			c.queueLimit = int64(limit)
		}
	}
}

func New(sess *session.Service, be Backend, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		session:               sess,
		backend:               be,
		badCredentialKeywords: defaultBadCredentialKeywords,
		queueLimit:            defaultQueueLimit,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// TryAutoLogin is the startup entry point. It only runs when "remember me"
// is on, credentials are saved and nobody is logged in, and it reports
// whether the session ended up logged in.
func (c *Coordinator) TryAutoLogin(ctx context.Context) bool {
	creds := c.session.Credentials()
	if !creds.RememberMe() || !creds.HasCredentials() || c.session.IsLoggedIn() {
		return false
	}
	_, err := c.join(ctx, nil)
	if err != nil {
		log.Info().Err(err).Msg("autologin: startup attempt failed")
		return false
	}
	return true
}

// Reauthenticate returns an access token to replace staleToken, which the
// backend just rejected. A token that already superseded it is returned
// without a new attempt. Once an attempt for staleToken has failed, later
// callers holding that token, or no token at all, get the same failure
// instead of starting another attempt. A successful attempt resets this.
func (c *Coordinator) Reauthenticate(ctx context.Context, staleToken string) (string, error) {
	if current := c.session.Store().AccessToken(); current != "" && current != staleToken {
		c.session.Reconcile()
		return current, nil
	}
	return c.join(ctx, utils.Ptr(staleToken))
}

// join waits for the running attempt, starting one if there is none.
// staleToken is nil for startup attempts, which never reuse a failure.
func (c *Coordinator) join(ctx context.Context, staleToken *string) (string, error) {
	if c.waiting.Add(1) > c.queueLimit {
		c.waiting.Add(-1)
		return "", apperrors.ErrQueueFull
	}
	defer c.waiting.Add(-1)

	// The attempt outlives any single caller; it is bounded by the HTTP
	// client's own timeout.
	procCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		// Checked inside the flight: the failure is recorded before the
		// flight ends, so no caller can slip in between.
		if staleToken != nil {
			if f := c.lastFailure.Load(); f.covers(*staleToken) {
				log.Debug().Err(f.err).Msg("autologin: session already failed, not retrying")
				return "", f.err
			}
		}
		token, err := c.run(procCtx)
		switch {
		case err == nil:
			c.lastFailure.Store(nil)
		case staleToken != nil:
			c.lastFailure.Store(&failedAttempt{staleToken: utils.Value(staleToken), err: err})
		}
		return token, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "[Coordinator.join] gave up waiting")
	}
}

func (c *Coordinator) run(ctx context.Context) (token string, err error) {
	c.state.Store(int32(StateInFlight))
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("autologin: recovered from panic")
			token, err = "", errors.Wrapf(apperrors.ErrAutoLoginFailed, "panic: %v", r)
		}
		if err != nil {
			c.state.Store(int32(StateFailed))
			return
		}
		c.state.Store(int32(StateSuccess))
	}()

	if token, ok := c.refresh(ctx); ok {
		return token, nil
	}
	return c.loginWithSavedCredentials(ctx)
}

// refresh tries the refresh token, if one is stored for the current session.
func (c *Coordinator) refresh(ctx context.Context) (string, bool) {
	refreshToken := c.session.Store().RefreshToken()
	if refreshToken == "" || !c.session.IsLoggedIn() {
		return "", false
	}
	result, err := c.backend.RefreshToken(ctx, refreshToken)
	if err != nil {
		log.Debug().Err(err).Msg("autologin: token refresh failed, falling back to saved credentials")
		return "", false
	}
	c.session.SetProfile(session.ProfilePatch{
		AccessToken:  utils.Ptr(result.Token),
		RefreshToken: utils.Ptr(result.RefreshToken),
	})
	log.Info().Msg("autologin: session refreshed")
	return result.Token, true
}

func (c *Coordinator) loginWithSavedCredentials(ctx context.Context) (string, error) {
	creds, err := c.session.Credentials().Load()
	if err != nil {
		return "", errors.Wrap(err, "[Coordinator.loginWithSavedCredentials]")
	}

	captcha, err := c.backend.Captcha(ctx)
	if err != nil {
		return "", errors.Wrap(apperrors.ErrCaptchaUnavailable, err.Error())
	}
	if !captcha.Solvable() {
		return "", errors.Wrap(apperrors.ErrCaptchaUnavailable, "captcha needs a human")
	}

	err = c.session.Login(ctx, session.LoginRequest{
		Username:   creds.Username,
		Password:   creds.Password,
		Captcha:    captcha.CaptchaText,
		CaptchaID:  captcha.CaptchaID,
		RememberMe: true,
	})
	if err != nil {
		var authErr *session.AuthError
		if errors.As(err, &authErr) && utils.ContainsAny(authErr.Message, c.badCredentialKeywords) {
			log.Warn().Str("username", creds.Username).Msg("autologin: saved credentials rejected, forgetting them")
			c.session.Credentials().Clear()
			return "", errors.Wrap(apperrors.ErrBadCredentials, authErr.Message)
		}
		return "", errors.Wrap(apperrors.ErrAutoLoginFailed, err.Error())
	}

	log.Info().Str("username", creds.Username).Msg("autologin: logged in with saved credentials")
	return c.session.AccessToken(), nil
}
