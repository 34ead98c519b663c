// Package devserver is an in-process stand-in for the campus backend. It
// speaks the same envelope protocol and is used by the tests and by the
// devbackend binary.
package devserver

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/campus-session-client/internal/config"
	"github.com/pkg/errors"
)

const (
	defaultSecret   = "devserver-secret"
	defaultTokenTTL = time.Hour
)

type Server struct {
	router chi.Router
	signer *tokenSigner

	mu            sync.Mutex
	users         map[string]*user
	nextUserID    int64
	refreshTokens map[string]string // refresh token -> username
	captchas      map[string]string // captcha id -> code
	generation    int

	tokenTTL          time.Duration
	issueRefresh      bool
	unsolvableCaptcha bool
	loginDelay        time.Duration
	allowedOrigins    []string
	allowedMethods    []string
	allowedHeaders    []string
	nowTime           func() time.Time

	rejectAll    atomic.Bool
	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	captchaCalls atomic.Int64
	logoutCalls  atomic.Int64
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

func WithSecret(secret string) ServerOption {
	return func(s *Server) {
		s.signer = newTokenSigner(secret)
	}
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// WithRefreshTokens makes login issue refresh tokens.
func WithRefreshTokens() ServerOption {
	return func(s *Server) {
		s.issueRefresh = true
	}
}

// WithUnsolvableCaptcha makes /captcha return an image only.
func WithUnsolvableCaptcha() ServerOption {
	return func(s *Server) {
		s.unsolvableCaptcha = true
	}
}

// WithLoginDelay slows /login down so concurrent callers overlap.
func WithLoginDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.loginDelay = d
	}
}

// WithCORS takes the CORS policy from configuration.
func WithCORS(c config.CorsConfig) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = c.GetAllowedOrigins().List()
		s.allowedMethods = c.GetAllowedMethods()
		s.allowedHeaders = c.GetAllowedHeaders()
	}
}

// WithNowTime sets the clock used for token issue and expiry (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(options ...ServerOption) *Server {
	s := &Server{
		signer:         newTokenSigner(defaultSecret),
		users:          make(map[string]*user),
		nextUserID:     1,
		refreshTokens:  make(map[string]string),
		captchas:       make(map[string]string),
		tokenTTL:       defaultTokenTTL,
		allowedOrigins: []string{"*"},
		allowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		allowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.router = s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed adds an account.
func (s *Server) Seed(username, password, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, "", role)
}

func (s *Server) addUserLocked(username, password, email, role string) error {
	if _, exists := s.users[username]; exists {
		return errors.Errorf("user %q already exists", username)
	}
	u, err := newUser(s.nextUserID, username, password, email, role)
	if err != nil {
		return err
	}
	s.nextUserID++
	s.users[username] = u
	return nil
}

// ExpireTokens invalidates every access token issued so far. Refresh tokens
// stay valid.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// SetPassword changes a user's password, e.g. to simulate a change made
// elsewhere.
func (s *Server) SetPassword(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return errors.Errorf("user %q not found", username)
	}
	updated, err := newUser(u.ID, u.Username, password, u.Email, u.Role)
	if err != nil {
		return err
	}
	s.users[username] = updated
	return nil
}

// RejectAll makes every protected endpoint answer 401 while on.
func (s *Server) RejectAll(on bool) {
	s.rejectAll.Store(on)
}

func (s *Server) LoginCalls() int64   { return s.loginCalls.Load() }
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }
func (s *Server) CaptchaCalls() int64 { return s.captchaCalls.Load() }
func (s *Server) LogoutCalls() int64  { return s.logoutCalls.Load() }

func (s *Server) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
