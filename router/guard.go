package router

import (
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/rs/zerolog/log"
)

const redirectQueryParam = "redirect"

// Session is the view of the session the guard needs.
type Session interface {
	IsLoggedIn() bool
	Reconcile() bool
	Profile() (session.UserProfile, bool)
}

// Decision is the outcome of the before-navigation check. Redirect is empty
// when the navigation is allowed.
type Decision struct {
	Redirect string
	Reason   string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

func allow() Decision {
	return Decision{}
}

func redirect(to, reason string) Decision {
	return Decision{Redirect: to, Reason: reason}
}

// Guard enforces authentication and roles on navigation and handles the
// one-shot return to the page that required login.
type Guard struct {
	table   *Table
	session Session
	store   storage.Store
}

func NewGuard(table *Table, sess Session, store storage.Store) *Guard {
	return &Guard{table: table, session: sess, store: store}
}

func (g *Guard) Table() *Table {
	return g.table
}

// Before decides whether the navigation from one location to another may
// proceed. A refused navigation carries the location to go to instead.
func (g *Guard) Before(from, to Location) Decision {
	route, ok := g.table.Lookup(to.Path)
	if !ok {
		return redirect(g.table.Fallback, "unknown route")
	}
	if route.Redirect != "" {
		return redirect(route.Redirect, "route alias")
	}

	if route.Public {
		if route.GuestOnly && g.session.Reconcile() {
			return redirect(g.table.Home, "already logged in")
		}
		return allow()
	}

	if !g.session.Reconcile() {
		g.RememberDestination(to.String())
		log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("router: login required")
		return redirect(g.table.Login, "login required")
	}

	if len(route.Roles) > 0 {
		profile, _ := g.session.Profile()
		if !profile.HasRole(route.Roles...) {
			log.Debug().Str("to", to.Path).Str("role", profile.Role).Msg("router: role not permitted")
			return redirect(g.table.Home, "role not permitted")
		}
	}
	return allow()
}

// After runs once a navigation landed. It returns where to go next, or "".
func (g *Guard) After(from, to Location) string {
	if to.Path == g.table.Login {
		g.session.Reconcile()
		return ""
	}
	if from.Path != g.table.Login || !g.session.IsLoggedIn() {
		return ""
	}

	target := g.takeDestination()
	if target == "" {
		if q := from.Query.Get(redirectQueryParam); isInAppPath(q) {
			target = q
		}
	}
	if target == "" || target == to.String() {
		return ""
	}
	return target
}

// RememberDestination stores where to go after the next login.
func (g *Guard) RememberDestination(path string) {
	if !isInAppPath(path) {
		return
	}
	if err := g.store.Set(storage.KeyRedirectAfterLogin, path); err != nil {
		log.Err(err).Msg("router: storing redirect target failed")
	}
}

// ForgetDestination drops any stored post-login target.
func (g *Guard) ForgetDestination() {
	if err := g.store.Delete(storage.KeyRedirectAfterLogin); err != nil {
		log.Err(err).Msg("router: clearing redirect target failed")
	}
}

// takeDestination reads and clears the stored target. Anything that is not an
// in-app path is discarded.
func (g *Guard) takeDestination() string {
	target, ok := g.store.Get(storage.KeyRedirectAfterLogin)
	if !ok {
		return ""
	}
	g.ForgetDestination()
	if !isInAppPath(target) {
		log.Warn().Str("target", target).Msg("router: ignoring off-app redirect target")
		return ""
	}
	return target
}
