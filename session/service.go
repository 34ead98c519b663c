// Package session holds the client's single authoritative session: the
// in-memory logged-in state, its durable mirror and the remembered
// credentials used for auto-login.
package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/campus-session-client/backend"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultLoginPath = "/login"

// Authenticator is the part of the backend contract the session drives.
type Authenticator interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResult, error)
	Register(ctx context.Context, req backend.RegisterRequest) error
	Logout(ctx context.Context) error
}

// Navigator performs a hard navigation: every piece of in-memory view state is
// discarded before the path is entered.
type Navigator interface {
	HardNavigate(ctx context.Context, path string) error
}

// LoginRequest carries the login form.
type LoginRequest struct {
	Username   string
	Password   string
	Captcha    string
	CaptchaID  string
	RememberMe bool
}

// LogoutOptions controls what a logout discards besides the session.
type LogoutOptions struct {
	Redirect bool // hard-navigate to the login view afterwards
	Complete bool // also forget the remembered credentials
}

// Service is the session of one application instance. Build it once and pass
// it to the HTTP client and the router. It is safe for concurrent use.
//
// Invariant: profile != nil iff logged in iff storage holds an access token
// (after Reconcile).
type Service struct {
	mu          sync.RWMutex
	profile     *UserProfile
	store       *PersistentStore
	credentials *CredentialStore
	auth        Authenticator
	navigator   Navigator
	loginPath   string
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLoginPath sets where a redirecting logout lands.
func WithLoginPath(path string) ServiceOption {
	return func(s *Service) {
		s.loginPath = path
	}
}

// WithNavigator attaches the hard navigator at construction time.
func WithNavigator(n Navigator) ServiceOption {
	return func(s *Service) {
		s.navigator = n
	}
}

func NewService(store *PersistentStore, credentials *CredentialStore, auth Authenticator, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] persistent store is required")
	}
	if credentials == nil {
		return nil, errors.New("[NewService] credential store is required")
	}
	if auth == nil {
		return nil, errors.New("[NewService] authenticator is required")
	}
	s := &Service{
		store:       store,
		credentials: credentials,
		auth:        auth,
		loginPath:   defaultLoginPath,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// AttachNavigator sets the hard navigator once the router exists.
func (s *Service) AttachNavigator(n Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigator = n
}

// Restore loads the session from storage. A partially stored session is
// cleared silently.
func (s *Service) Restore() bool {
	profile, err := s.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("session: stored state unusable, resetting")
		if clearErr := s.store.Clear(); clearErr != nil {
			log.Err(clearErr).Msg("session: clear after corrupted state failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	return profile != nil
}

// Reconcile heals drift between memory and storage, e.g. a logout or a new
// login in another client instance. Storage wins.
func (s *Service) Reconcile() bool {
	stored := s.store.AccessToken()

	s.mu.Lock()
	current := s.profile
	if stored == "" {
		if current != nil {
			log.Info().Msg("session: token gone from storage, logging out locally")
		}
		s.profile = nil
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if current == nil || current.AccessToken != stored {
		return s.Restore()
	}
	return true
}

// SetProfile merges the patch into the logged-in profile and persists it.
func (s *Service) SetProfile(patch ProfilePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		log.Warn().Msg("session: SetProfile ignored, not logged in")
		return
	}
	updated := s.profile.merge(patch)
	if err := s.store.SetTokens(patch.AccessToken, patch.RefreshToken); err != nil {
		log.Err(err).Msg("session: persisting tokens failed")
	}
	if err := s.store.SaveProfile(updated); err != nil {
		log.Err(err).Msg("session: persisting profile failed")
	}
	s.profile = &updated
}

// Login authenticates against the backend. When the backend refuses, the
// session is left untouched and the returned *AuthError carries the server's
// message. When the new session cannot be stored, the old one is dropped.
func (s *Service) Login(ctx context.Context, req LoginRequest) error {
	result, err := s.auth.Login(ctx, backend.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		Captcha:   req.Captcha,
		CaptchaID: req.CaptchaID,
	})
	if err != nil {
		return newAuthError(err)
	}

	profile := profileFromLogin(result, req.Username)
	if !profile.complete() {
		return &AuthError{Message: "login response is missing the access token"}
	}
	if err := s.store.Save(profile); err != nil {
		// A partial write must not outlive the earlier session either.
		if clearErr := s.store.Clear(); clearErr != nil {
			log.Err(clearErr).Msg("session: clearing storage after failed login failed")
		}
		s.mu.Lock()
		s.profile = nil
		s.mu.Unlock()
		return &AuthError{Message: "could not store the session", Err: err}
	}

	if req.RememberMe {
		s.credentials.Save(req.Username, req.Password)
	} else {
		s.credentials.Clear()
	}

	s.mu.Lock()
	s.profile = &profile
	s.mu.Unlock()

	log.Info().Str("username", profile.Username).Str("role", profile.Role).Msg("session: logged in")
	return nil
}

// Register creates an account. It does not log in.
func (s *Service) Register(ctx context.Context, req backend.RegisterRequest) error {
	if err := s.auth.Register(ctx, req); err != nil {
		return newAuthError(err)
	}
	return nil
}

// Logout ends the session. The backend is told on a best-effort basis.
func (s *Service) Logout(ctx context.Context, opts LogoutOptions) {
	if s.IsLoggedIn() {
		if err := s.auth.Logout(ctx); err != nil {
			log.Debug().Err(err).Msg("session: backend logout failed, continuing")
		}
	}

	s.ClearLocal()
	if opts.Complete {
		s.credentials.Clear()
	}

	s.mu.RLock()
	navigator := s.navigator
	s.mu.RUnlock()
	if opts.Redirect && navigator != nil {
		if err := navigator.HardNavigate(ctx, s.loginPath); err != nil {
			log.Err(err).Msg("session: redirect after logout failed")
		}
	}
}

// ClearLocal drops the session in memory and in storage without talking to
// the backend.
func (s *Service) ClearLocal() {
	s.mu.Lock()
	s.profile = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		log.Err(err).Msg("session: clearing storage failed")
	}
}

func (s *Service) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil
}

// Profile returns a copy of the current profile.
func (s *Service) Profile() (UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return UserProfile{}, false
	}
	return *s.profile, true
}

// AccessToken is the in-memory token, empty when logged out.
func (s *Service) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return ""
	}
	return s.profile.AccessToken
}

func (s *Service) Credentials() *CredentialStore {
	return s.credentials
}

func (s *Service) Store() *PersistentStore {
	return s.store
}
