// Package app assembles one client instance: a single session shared by the
// HTTP pipeline, the auto-login coordinator and the router.
package app

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/jrsteele09/campus-session-client/autologin"
	"github.com/jrsteele09/campus-session-client/backend"
	"github.com/jrsteele09/campus-session-client/httpclient"
	"github.com/jrsteele09/campus-session-client/internal/config"
	"github.com/jrsteele09/campus-session-client/router"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/jrsteele09/campus-session-client/vault"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ httpclient.AuthFailureHandler = (*App)(nil)

// App is one running client. Build it once per process (or per simulated
// tab) and share it.
type App struct {
	HTTP        *httpclient.Client
	API         *backend.Client
	Session     *session.Service
	Credentials *session.CredentialStore
	AutoLogin   *autologin.Coordinator
	Router      *router.Router
	Storage     storage.Store

	table   *router.Table
	closers []io.Closer
}

type options struct {
	store      storage.Store
	httpClient *http.Client
	presenter  httpclient.Presenter
	table      *router.Table
}

// Option defines a function type to modify how the App is built.
type Option func(*options)

// WithStore replaces the configured durable store. Instances given the same
// store behave like tabs of one browser.
func WithStore(s storage.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

func WithPresenter(p httpclient.Presenter) Option {
	return func(o *options) {
		o.presenter = p
	}
}

func WithRouteTable(t *router.Table) Option {
	return func(o *options) {
		o.table = t
	}
}

func New(cfg config.Config, opts ...Option) (*App, error) {
	o := &options{presenter: httpclient.LogPresenter{}}
	for _, opt := range opts {
		opt(o)
	}
	a := &App{}

	local := o.store
	if local == nil {
		location := cfg.GetStoragePath()
		if cfg.GetStorageBackend() == storage.BackendRedis {
			location = cfg.GetRedisURL()
		}
		opened, err := storage.Open(cfg.GetStorageBackend(), location, cfg.GetRedisPrefix())
		if err != nil {
			return nil, errors.Wrap(err, "[app.New] open storage")
		}
		if c, ok := opened.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		local = opened
	}
	a.Storage = local

	secret, err := cfg.GetEncryptionKey()
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] encryption key")
	}
	v, err := vault.New(secret)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] vault")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] cookie jar")
	}
	origin, err := url.Parse(cfg.GetAPIBaseURL())
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] api base url")
	}

	store := session.NewPersistentStore(local, storage.NewMemoryStore(), session.WithCookies(jar, origin))
	a.Credentials = session.NewCredentialStore(local, v)

	clientOpts := []httpclient.ClientOption{}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, httpclient.WithHTTPClient(o.httpClient))
	}
	clientOpts = append(clientOpts,
		httpclient.WithTimeout(cfg.GetRequestTimeout()),
		httpclient.WithCookieJar(jar),
		httpclient.WithTokenSource(store),
		httpclient.WithPresenter(o.presenter),
		httpclient.WithMiddleware(httpclient.RequestIDMiddleware, httpclient.LoggingMiddleware),
	)
	a.HTTP, err = httpclient.New(cfg.GetAPIBaseURL(), clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] http client")
	}
	a.API = backend.NewClient(a.HTTP)

	a.table = o.table
	if a.table == nil {
		if a.table, err = loadRouteTable(cfg.GetRoutesFile()); err != nil {
			return nil, err
		}
	}

	a.Session, err = session.NewService(store, a.Credentials, a.API, session.WithLoginPath(a.table.Login))
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] session")
	}
	a.AutoLogin = autologin.New(a.Session, a.API,
		autologin.WithBadCredentialKeywords(cfg.GetBadCredentialKeywords()),
		autologin.WithQueueLimit(cfg.GetAutoLoginQueueLimit()),
	)
	a.Router = router.New(router.NewGuard(a.table, a.Session, local))

	a.Session.AttachNavigator(a.Router)
	a.HTTP.SetReauthenticator(a.AutoLogin)
	a.HTTP.SetAuthFailureHandler(a)
	return a, nil
}

func loadRouteTable(path string) (*router.Table, error) {
	if path == "" {
		t, err := router.DefaultTable()
		return t, errors.Wrap(err, "[app.New] default routes")
	}
	t, err := router.LoadTableFile(path)
	return t, errors.Wrapf(err, "[app.New] routes file %s", path)
}

// Start brings the instance up: restore the session, try auto-login when
// nobody is logged in, then enter initialPath (home when empty). When
// auto-login fails for a user who had chosen to be remembered, the login view
// is shown instead.
func (a *App) Start(ctx context.Context, initialPath string) error {
	if a.Session.Restore() {
		log.Info().Msg("app: existing session restored")
	} else if a.AutoLogin.TryAutoLogin(ctx) {
		log.Info().Msg("app: auto-login succeeded")
	} else if a.Credentials.SavedUsername() != "" {
		log.Info().Msg("app: auto-login unavailable, showing login")
		return a.Router.Push(ctx, a.table.Login)
	}

	if initialPath == "" {
		initialPath = a.table.Home
	}
	return a.Router.Push(ctx, initialPath)
}

// OnTerminalAuthFailure drops the session and sends the user to the login
// view, remembering where they were.
func (a *App) OnTerminalAuthFailure(ctx context.Context) {
	a.Session.ClearLocal()
	if err := a.Router.ForceLogin(ctx); err != nil {
		log.Err(err).Msg("app: forcing login failed")
	}
}

// Logout ends the session and returns to the login view. complete also
// forgets the remembered credentials.
func (a *App) Logout(ctx context.Context, complete bool) {
	a.Session.Logout(ctx, session.LogoutOptions{Redirect: true, Complete: complete})
}

// Close releases the storage connection, if any.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
