package router_test

import (
	"context"
	"testing"

	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/jrsteele09/campus-session-client/router"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSession keeps an in-memory flag and a "storage" flag that Reconcile
// copies over, like a session whose storage is shared with other instances.
type fakeSession struct {
	inMemory   bool
	inStorage  bool
	role       string
	reconciles int
}

func (s *fakeSession) IsLoggedIn() bool { return s.inMemory }

func (s *fakeSession) Reconcile() bool {
	s.reconciles++
	s.inMemory = s.inStorage
	return s.inMemory
}

func (s *fakeSession) Profile() (session.UserProfile, bool) {
	if !s.inMemory {
		return session.UserProfile{}, false
	}
	return session.UserProfile{AccessToken: "t", Username: "alice", Role: s.role}, true
}

func (s *fakeSession) login(role string) {
	s.inMemory, s.inStorage, s.role = true, true, role
}

type fixture struct {
	session *fakeSession
	store   *storage.MemoryStore
	router  *router.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, err := router.DefaultTable()
	require.NoError(t, err)
	f := &fixture{session: &fakeSession{}, store: storage.NewMemoryStore()}
	f.router = router.New(router.NewGuard(table, f.session, f.store))
	return f
}

func (f *fixture) redirectAfterLogin() string {
	v, _ := f.store.Get(storage.KeyRedirectAfterLogin)
	return v
}

func TestDefaultTable(t *testing.T) {
	table, err := router.DefaultTable()
	require.NoError(t, err)
	require.Equal(t, "/index", table.Home)
	require.Equal(t, "/login", table.Login)

	profile, ok := table.Lookup("/profile/")
	require.True(t, ok)
	require.False(t, profile.Public)

	admin, ok := table.Lookup("/user-manage")
	require.True(t, ok)
	require.Equal(t, []string{"admin"}, admin.Roles)
}

func TestParseTableValidates(t *testing.T) {
	_, err := router.ParseTable([]byte("home: /x\nlogin: /login\nfallback: /x\nroutes:\n  - path: /login\n"))
	require.Error(t, err)

	_, err = router.ParseTable([]byte("home: /a\nlogin: /a\nfallback: /a\nroutes:\n  - path: a\n"))
	require.True(t, errors.Is(err, apperrors.ErrInvalidPath))
}

func TestParseLocation(t *testing.T) {
	loc, err := router.ParseLocation("/login?redirect=%2Fprofile")
	require.NoError(t, err)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "/profile", loc.Query.Get("redirect"))

	for _, bad := range []string{"https://evil.example.com/x", "//evil.example.com", "profile", `/\evil`} {
		_, err := router.ParseLocation(bad)
		require.True(t, errors.Is(err, apperrors.ErrInvalidPath), bad)
	}
}

func TestAnonymousUserIsSentToLogin(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.router.Push(context.Background(), "/profile"))
	require.Equal(t, "/login", f.router.Current().Path)
	require.Equal(t, "/profile", f.redirectAfterLogin())
}

func TestLoginResumesIntendedDestination(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Push(context.Background(), "/profile"))

	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/index"))

	require.Equal(t, "/profile", f.router.Current().Path)
	require.Empty(t, f.redirectAfterLogin())

	// one-shot: leaving the login view again goes where asked
	require.NoError(t, f.router.Push(context.Background(), "/campus/library"))
	require.Equal(t, "/campus/library", f.router.Current().Path)
}

func TestLoginFallsBackToRedirectQuery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Push(context.Background(), "/login?redirect=%2Fai%2Fchat"))
	require.Equal(t, "/login", f.router.Current().Path)

	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/index"))
	require.Equal(t, "/ai/chat", f.router.Current().Path)
}

func TestOffAppRedirectIsIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Push(context.Background(), "/login"))
	require.NoError(t, f.store.Set(storage.KeyRedirectAfterLogin, "https://evil.example.com"))

	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/index"))
	require.Equal(t, "/index", f.router.Current().Path)
	require.Empty(t, f.redirectAfterLogin())
}

func TestRoleMismatchGoesHome(t *testing.T) {
	f := newFixture(t)
	f.session.login("user")

	require.NoError(t, f.router.Push(context.Background(), "/user-manage"))
	require.Equal(t, "/index", f.router.Current().Path)
	require.Empty(t, f.redirectAfterLogin())

	f.session.login("admin")
	require.NoError(t, f.router.Push(context.Background(), "/user-manage"))
	require.Equal(t, "/user-manage", f.router.Current().Path)
}

func TestLoggedInUserSkipsLogin(t *testing.T) {
	f := newFixture(t)
	f.session.login("user")

	for _, path := range []string{"/login", "/register"} {
		require.NoError(t, f.router.Push(context.Background(), path))
		require.Equal(t, "/index", f.router.Current().Path)
	}
}

func TestLogoutElsewhereIsNoticed(t *testing.T) {
	f := newFixture(t)
	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/ai/study"))

	f.session.inStorage = false
	require.NoError(t, f.router.Push(context.Background(), "/profile"))

	require.Equal(t, "/login", f.router.Current().Path)
	require.False(t, f.session.IsLoggedIn())
	require.Equal(t, "/profile", f.redirectAfterLogin())
}

func TestArrivingAtLoginReconciles(t *testing.T) {
	f := newFixture(t)
	f.session.inMemory = true // stale

	require.NoError(t, f.router.Push(context.Background(), "/index"))
	before := f.session.reconciles
	require.NoError(t, f.router.Push(context.Background(), "/login"))
	require.Equal(t, "/login", f.router.Current().Path)
	require.Greater(t, f.session.reconciles, before)
	require.False(t, f.session.IsLoggedIn())
}

func TestAliasesAndUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Push(context.Background(), "/"))
	require.Equal(t, "/index", f.router.Current().Path)

	require.NoError(t, f.router.Push(context.Background(), "/no/such/page"))
	require.Equal(t, "/index", f.router.Current().Path)

	err := f.router.Push(context.Background(), "https://example.com")
	require.True(t, errors.Is(err, apperrors.ErrInvalidPath))
}

func TestRedirectLoopIsBounded(t *testing.T) {
	table, err := router.ParseTable([]byte(`
home: /a
login: /a
fallback: /a
routes:
  - path: /a
    redirect: /b
  - path: /b
    redirect: /a
`))
	require.NoError(t, err)
	r := router.New(router.NewGuard(table, &fakeSession{}, storage.NewMemoryStore()), router.WithMaxHops(3))

	err = r.Push(context.Background(), "/a")
	require.True(t, errors.Is(err, apperrors.ErrRedirectLoop))
}

func TestHardNavigateRunsResetHooks(t *testing.T) {
	f := newFixture(t)
	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/ai/chat"))
	require.NoError(t, f.router.Push(context.Background(), "/profile"))

	resets := 0
	f.router.OnReset(func() { resets++ })
	require.NoError(t, f.router.HardNavigate(context.Background(), "/campus/advice"))

	require.Equal(t, 1, resets)
	require.Len(t, f.router.History(), 1)
	require.Equal(t, "/campus/advice", f.router.Current().Path)
}

func TestForceLogin(t *testing.T) {
	f := newFixture(t)
	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/career/pee"))
	require.NoError(t, f.store.Set(storage.KeyRedirectAfterLogin, "/stale"))

	resets := 0
	f.router.OnReset(func() { resets++ })
	f.session.inMemory, f.session.inStorage = false, false

	require.NoError(t, f.router.ForceLogin(context.Background()))
	current := f.router.Current()
	require.Equal(t, "/login", current.Path)
	require.Equal(t, "/career/pee", current.Query.Get("redirect"))
	require.Equal(t, "/career/pee", f.redirectAfterLogin())
	require.Equal(t, 1, resets)

	// already on the login view
	require.NoError(t, f.router.ForceLogin(context.Background()))
	require.Equal(t, 1, resets)

	f.session.login("user")
	require.NoError(t, f.router.Push(context.Background(), "/index"))
	require.Equal(t, "/career/pee", f.router.Current().Path)
}
