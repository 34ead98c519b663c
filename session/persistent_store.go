package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/jrsteele09/campus-session-client/internal/utils"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	// ErrCorruptedState means storage holds a token without a usable profile or
	// the other way round.
	ErrCorruptedState = apperrors.ErrCorruptedState
	// ErrNotLoggedIn is returned when no access token is stored.
	ErrNotLoggedIn = apperrors.ErrNotLoggedIn
)

var _ oauth2.TokenSource = (*PersistentStore)(nil)

// PersistentStore mirrors the session into durable storage under the fixed
// key set.
type PersistentStore struct {
	local     storage.Store // durable, shared between client instances
	ephemeral storage.Store // short-lived, this instance only
	jar       http.CookieJar
	origin    *url.URL
	nowTime   func() time.Time
}

// PersistentStoreOption defines a function type to modify the PersistentStore instance.
type PersistentStoreOption func(*PersistentStore)

// WithCookies lets Clear expire the cookies the backend set for origin.
func WithCookies(jar http.CookieJar, origin *url.URL) PersistentStoreOption {
	return func(ps *PersistentStore) {
		ps.jar = jar
		ps.origin = origin
	}
}

// WithStoreNowTime sets the clock used for the lastLoginTime marker (primarily for testing)
func WithStoreNowTime(nowFunc func() time.Time) PersistentStoreOption {
	return func(ps *PersistentStore) {
		ps.nowTime = nowFunc
	}
}

func NewPersistentStore(local, ephemeral storage.Store, options ...PersistentStoreOption) *PersistentStore {
	if ephemeral == nil {
		ephemeral = storage.NewMemoryStore()
	}
	ps := &PersistentStore{
		local:     local,
		ephemeral: ephemeral,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(ps)
	}
	return ps
}

// Save writes the complete profile: the access token under both aliases, the
// refresh token when present and the profile record without tokens.
func (ps *PersistentStore) Save(profile UserProfile) error {
	if err := ps.SetTokens(&profile.AccessToken, &profile.RefreshToken); err != nil {
		return errors.Wrap(err, "[PersistentStore.Save] tokens")
	}
	if err := ps.SaveProfile(profile); err != nil {
		return errors.Wrap(err, "[PersistentStore.Save] profile")
	}
	if err := ps.local.Set(storage.KeyLastLoginTime, ps.nowTime().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("persistent store: lastLoginTime not written")
	}
	return nil
}

// SaveProfile rewrites the userInfo record only.
func (ps *PersistentStore) SaveProfile(profile UserProfile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrap(err, "[PersistentStore.SaveProfile] marshal")
	}
	return ps.local.Set(storage.KeyUserInfo, string(b))
}

// SetTokens persists the given token fields individually. A nil or empty
// refresh token removes the stored one; a nil access token is left alone.
func (ps *PersistentStore) SetTokens(accessToken, refreshToken *string) error {
	if accessToken != nil && *accessToken != "" {
		if err := ps.local.Set(storage.KeyToken, *accessToken); err != nil {
			return err
		}
		if err := ps.local.Set(storage.KeyTokenAlt, *accessToken); err != nil {
			return err
		}
	}
	if refreshToken != nil {
		if *refreshToken == "" {
			return ps.local.Delete(storage.KeyRefreshToken)
		}
		return ps.local.Set(storage.KeyRefreshToken, *refreshToken)
	}
	return nil
}

// Load reads the stored profile. (nil, nil) means nothing is stored;
// ErrCorruptedState means only part of a session is stored.
func (ps *PersistentStore) Load() (*UserProfile, error) {
	token := ps.AccessToken()
	info := ps.get(storage.KeyUserInfo)

	if token == "" && info == "" {
		return nil, nil
	}
	if token == "" || info == "" {
		return nil, errors.Wrap(ErrCorruptedState, "token and profile must be stored together")
	}

	var profile UserProfile
	if err := json.Unmarshal([]byte(info), &profile); err != nil {
		return nil, errors.Wrap(ErrCorruptedState, "profile record does not parse")
	}
	profile.AccessToken = token
	profile.RefreshToken = ps.RefreshToken()
	if !profile.complete() {
		return nil, errors.Wrap(ErrCorruptedState, "profile record is incomplete")
	}
	return &profile, nil
}

// AccessToken returns the stored access token, primary alias first.
func (ps *PersistentStore) AccessToken() string {
	return utils.FirstNonEmpty(ps.get(storage.KeyToken), ps.get(storage.KeyTokenAlt))
}

func (ps *PersistentStore) RefreshToken() string {
	return ps.get(storage.KeyRefreshToken)
}

// Token implements oauth2.TokenSource over the stored tokens. When the access
// token is a JWT its exp claim becomes the token expiry; the signature is not
// checked, the backend does that.
func (ps *PersistentStore) Token() (*oauth2.Token, error) {
	access := ps.AccessToken()
	if access == "" {
		return nil, ErrNotLoggedIn
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: ps.RefreshToken(),
		TokenType:    "Bearer",
		Expiry:       accessTokenExpiry(access),
	}, nil
}

// Clear removes every session key from both stores and expires the backend's
// cookies. Remembered credentials survive.
func (ps *PersistentStore) Clear() error {
	errLocal := storage.DeleteAll(ps.local, storage.SessionKeys...)
	errEphemeral := storage.DeleteAll(ps.ephemeral, storage.SessionKeys...)
	ps.expireCookies()
	if errLocal != nil {
		return errors.Wrap(errLocal, "[PersistentStore.Clear] durable store")
	}
	return errors.Wrap(errEphemeral, "[PersistentStore.Clear] session store")
}

// Local exposes the durable store for collaborators that keep their own keys.
func (ps *PersistentStore) Local() storage.Store {
	return ps.local
}

func (ps *PersistentStore) expireCookies() {
	if ps.jar == nil || ps.origin == nil {
		return
	}
	existing := ps.jar.Cookies(ps.origin)
	if len(existing) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(existing))
	for _, c := range existing {
		expired = append(expired, &http.Cookie{
			Name:    c.Name,
			Value:   "",
			Path:    "/",
			Expires: time.Unix(0, 0),
			MaxAge:  -1,
		})
	}
	ps.jar.SetCookies(ps.origin, expired)
}

// get treats the stringified "undefined"/"null" left by older clients as absent.
func (ps *PersistentStore) get(key string) string {
	v, ok := ps.local.Get(key)
	if !ok {
		return ""
	}
	switch strings.TrimSpace(v) {
	case "", "undefined", "null":
		return ""
	}
	return v
}

func accessTokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
