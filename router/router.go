// Package router navigates between the in-app views and runs the route guard
// on every navigation.
package router

import (
	"context"
	"net/url"
	"sync"

	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultMaxHops = 8

// Router keeps the current location and the history of this app instance.
type Router struct {
	guard   *Guard
	maxHops int

	nav        sync.Mutex // serialises navigations
	mu         sync.RWMutex
	current    Location
	history    []Location
	resetHooks []func()
}

// RouterOption defines a function type to modify the Router instance.
type RouterOption func(*Router)

// WithMaxHops bounds the redirects a single navigation may follow.
func WithMaxHops(n int) RouterOption {
	return func(r *Router) {
		r.maxHops = n
	}
}

func New(guard *Guard, options ...RouterOption) *Router {
	r := &Router{guard: guard, maxHops: defaultMaxHops}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Current is where the app is. It is the zero Location before the first
// navigation.
func (r *Router) Current() Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Router) History() []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Location(nil), r.history...)
}

// OnReset registers a function that discards some in-memory view state. All
// of them run on every hard navigation.
func (r *Router) OnReset(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetHooks = append(r.resetHooks, hook)
}

// Push navigates to path, following guard redirects.
func (r *Router) Push(ctx context.Context, path string) error {
	r.nav.Lock()
	defer r.nav.Unlock()
	return r.push(ctx, path)
}

func (r *Router) push(ctx context.Context, path string) error {
	target, err := ParseLocation(path)
	if err != nil {
		return err
	}

	for hops := 0; ; hops++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "[Router.Push]")
		}
		if hops > r.maxHops {
			return errors.Wrapf(apperrors.ErrRedirectLoop, "navigating to %q", path)
		}

		from := r.Current()
		decision := r.guard.Before(from, target)
		if !decision.Allowed() {
			log.Debug().Str("to", target.String()).Str("redirect", decision.Redirect).Str("reason", decision.Reason).Msg("router: redirected")
			if target, err = ParseLocation(decision.Redirect); err != nil {
				return err
			}
			continue
		}

		r.land(target)
		next := r.guard.After(from, target)
		if next == "" {
			return nil
		}
		if target, err = ParseLocation(next); err != nil {
			return err
		}
	}
}

func (r *Router) land(to Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = to
	r.history = append(r.history, to)
}

// HardNavigate discards every piece of in-memory view state, then navigates.
func (r *Router) HardNavigate(ctx context.Context, path string) error {
	r.nav.Lock()
	defer r.nav.Unlock()
	return r.hardNavigate(ctx, path)
}

func (r *Router) hardNavigate(ctx context.Context, path string) error {
	r.mu.Lock()
	hooks := append([]func(){}, r.resetHooks...)
	r.current = Location{}
	r.history = nil
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return r.push(ctx, path)
}

// ForceLogin sends the user to the login view after the session was lost,
// remembering where they were. It does nothing when already there.
func (r *Router) ForceLogin(ctx context.Context) error {
	r.nav.Lock()
	defer r.nav.Unlock()

	login := r.guard.Table().Login
	current := r.Current()
	if current.Path == login {
		return nil
	}

	r.guard.ForgetDestination()
	target := login
	if current.Path != "" {
		r.guard.RememberDestination(current.String())
		target = login + "?" + url.Values{redirectQueryParam: {current.String()}}.Encode()
	}
	log.Info().Str("from", current.String()).Msg("router: session lost, forcing login")
	return r.hardNavigate(ctx, target)
}
