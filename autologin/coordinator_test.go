package autologin_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/campus-session-client/autologin"
	"github.com/jrsteele09/campus-session-client/backend"
	"github.com/jrsteele09/campus-session-client/httpclient"
	"github.com/jrsteele09/campus-session-client/internal/devserver"
	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/jrsteele09/campus-session-client/vault"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	devserver   *devserver.Server
	api         *backend.Client
	session     *session.Service
	credentials *session.CredentialStore
	coordinator *autologin.Coordinator
}

func newFixture(t *testing.T, serverOptions []devserver.ServerOption, options ...autologin.CoordinatorOption) *fixture {
	t.Helper()
	ds := devserver.New(serverOptions...)
	require.NoError(t, ds.Seed("alice", "correct-horse", devserver.RoleUser))
	srv := httptest.NewServer(ds)
	t.Cleanup(srv.Close)

	local := storage.NewMemoryStore()
	store := session.NewPersistentStore(local, nil)
	v, err := vault.New("test-secret")
	require.NoError(t, err)
	creds := session.NewCredentialStore(local, v)

	client, err := httpclient.New(srv.URL+devserver.APIPrefix, httpclient.WithTokenSource(store))
	require.NoError(t, err)
	api := backend.NewClient(client)

	sess, err := session.NewService(store, creds, api)
	require.NoError(t, err)
	coordinator := autologin.New(sess, api, options...)
	client.SetReauthenticator(coordinator)

	return &fixture{devserver: ds, api: api, session: sess, credentials: creds, coordinator: coordinator}
}

func TestTryAutoLogin(t *testing.T) {
	t.Run("logs in with saved credentials", func(t *testing.T) {
		f := newFixture(t, nil)
		require.True(t, f.credentials.Save("alice", "correct-horse"))

		require.True(t, f.coordinator.TryAutoLogin(context.Background()))
		require.True(t, f.session.IsLoggedIn())
		require.Equal(t, autologin.StateSuccess, f.coordinator.State())
		profile, _ := f.session.Profile()
		require.Equal(t, "alice", profile.Username)
	})

	t.Run("does nothing without remember me", func(t *testing.T) {
		f := newFixture(t, nil)
		require.False(t, f.coordinator.TryAutoLogin(context.Background()))
		require.Zero(t, f.devserver.LoginCalls())
		require.Equal(t, autologin.StateIdle, f.coordinator.State())
	})

	t.Run("does nothing when already logged in", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.session.Login(context.Background(), session.LoginRequest{
			Username: "alice", Password: "correct-horse", Captcha: "x", RememberMe: true,
		}))
		require.False(t, f.coordinator.TryAutoLogin(context.Background()))
		require.EqualValues(t, 1, f.devserver.LoginCalls())
	})

	t.Run("bad credentials are forgotten", func(t *testing.T) {
		f := newFixture(t, nil)
		require.True(t, f.credentials.Save("alice", "changed-elsewhere"))

		require.False(t, f.coordinator.TryAutoLogin(context.Background()))
		require.False(t, f.session.IsLoggedIn())
		require.False(t, f.credentials.HasCredentials())
		require.False(t, f.credentials.RememberMe())
		require.Equal(t, autologin.StateFailed, f.coordinator.State())
	})

	t.Run("unsolvable captcha keeps credentials", func(t *testing.T) {
		f := newFixture(t, []devserver.ServerOption{devserver.WithUnsolvableCaptcha()})
		require.True(t, f.credentials.Save("alice", "correct-horse"))

		require.False(t, f.coordinator.TryAutoLogin(context.Background()))
		require.True(t, f.credentials.HasCredentials())
		require.Zero(t, f.devserver.LoginCalls())
		require.EqualValues(t, 1, f.devserver.CaptchaCalls())
	})

	t.Run("custom keywords decide what is a credential failure", func(t *testing.T) {
		f := newFixture(t, nil, autologin.WithBadCredentialKeywords([]string{"account locked"}))
		require.True(t, f.credentials.Save("alice", "changed-elsewhere"))

		require.False(t, f.coordinator.TryAutoLogin(context.Background()))
		require.True(t, f.credentials.HasCredentials())
	})
}

func TestReauthenticateSingleFlight(t *testing.T) {
	f := newFixture(t, []devserver.ServerOption{devserver.WithLoginDelay(200 * time.Millisecond)})
	require.True(t, f.credentials.Save("alice", "correct-horse"))

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.coordinator.Reauthenticate(context.Background(), "")
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, f.devserver.LoginCalls())
	require.EqualValues(t, 1, f.devserver.CaptchaCalls())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, f.session.AccessToken(), tokens[i])
	}
}

func TestReauthenticateReturnsNewerToken(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Login(context.Background(), session.LoginRequest{
		Username: "alice", Password: "correct-horse", Captcha: "x",
	}))
	current := f.session.AccessToken()

	token, err := f.coordinator.Reauthenticate(context.Background(), "some-older-token")
	require.NoError(t, err)
	require.Equal(t, current, token)
	require.EqualValues(t, 1, f.devserver.LoginCalls())
	require.Equal(t, autologin.StateIdle, f.coordinator.State())
}

func TestReauthenticateUsesRefreshToken(t *testing.T) {
	f := newFixture(t, []devserver.ServerOption{devserver.WithRefreshTokens()})
	require.NoError(t, f.session.Login(context.Background(), session.LoginRequest{
		Username: "alice", Password: "correct-horse", Captcha: "x",
	}))
	stale := f.session.AccessToken()
	refresh := f.session.Store().RefreshToken()
	require.NotEmpty(t, refresh)

	f.devserver.ExpireTokens()

	var plans []devserver.StudyPlan
	require.NoError(t, f.api.Get(context.Background(), backend.PathStudyPlans, nil, &plans))
	require.Len(t, plans, 2)

	require.EqualValues(t, 1, f.devserver.RefreshCalls())
	require.EqualValues(t, 1, f.devserver.LoginCalls())
	require.NotEqual(t, stale, f.session.AccessToken())
	require.NotEqual(t, refresh, f.session.Store().RefreshToken())
}

func TestReauthenticateWithoutCredentialsFails(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.coordinator.Reauthenticate(context.Background(), "")
	require.True(t, errors.Is(err, apperrors.ErrNoSavedCredentials))
	require.Equal(t, autologin.StateFailed, f.coordinator.State())
}

func TestReauthenticateDoesNotRepeatFailedAttempt(t *testing.T) {
	f := newFixture(t, []devserver.ServerOption{devserver.WithUnsolvableCaptcha()})
	ctx := context.Background()
	require.NoError(t, f.session.Login(ctx, session.LoginRequest{
		Username: "alice", Password: "correct-horse", Captcha: "x", RememberMe: true,
	}))
	stale := f.session.AccessToken()

	_, err := f.coordinator.Reauthenticate(ctx, stale)
	require.True(t, errors.Is(err, apperrors.ErrCaptchaUnavailable))
	require.EqualValues(t, 1, f.devserver.CaptchaCalls())

	t.Run("same stale token", func(t *testing.T) {
		_, err := f.coordinator.Reauthenticate(ctx, stale)
		require.True(t, errors.Is(err, apperrors.ErrCaptchaUnavailable))
		require.EqualValues(t, 1, f.devserver.CaptchaCalls())
	})

	t.Run("no token after the session was cleared", func(t *testing.T) {
		f.session.ClearLocal()
		_, err := f.coordinator.Reauthenticate(ctx, "")
		require.True(t, errors.Is(err, apperrors.ErrCaptchaUnavailable))
		require.EqualValues(t, 1, f.devserver.CaptchaCalls())
	})

	t.Run("a new session gets its own attempt", func(t *testing.T) {
		require.NoError(t, f.session.Login(ctx, session.LoginRequest{
			Username: "alice", Password: "correct-horse", Captcha: "x", RememberMe: true,
		}))
		fresh := f.session.AccessToken()
		require.NotEqual(t, stale, fresh)

		_, err := f.coordinator.Reauthenticate(ctx, fresh)
		require.True(t, errors.Is(err, apperrors.ErrCaptchaUnavailable))
		require.EqualValues(t, 2, f.devserver.CaptchaCalls())
	})
}

func TestQueueLimit(t *testing.T) {
	f := newFixture(t, []devserver.ServerOption{devserver.WithLoginDelay(300 * time.Millisecond)}, autologin.WithQueueLimit(1))
	require.True(t, f.credentials.Save("alice", "correct-horse"))

	done := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Reauthenticate(context.Background(), "")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.coordinator.State() == autologin.StateInFlight
	}, time.Second, 5*time.Millisecond)

	_, err := f.coordinator.Reauthenticate(context.Background(), "")
	require.True(t, errors.Is(err, apperrors.ErrQueueFull))
	require.NoError(t, <-done)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "in_flight", autologin.StateInFlight.String())
	require.Equal(t, "state(9)", autologin.State(9).String())
}
