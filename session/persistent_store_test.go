package session_test

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "exp": exp.Unix()})
	signed, err := token.SignedString([]byte("k"))
	require.NoError(t, err)
	return signed
}

func sampleProfile() session.UserProfile {
	return session.UserProfile{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Role:         "admin",
		Username:     "alice",
		UserID:       7,
		Email:        "alice@example.com",
	}
}

func TestPersistentStoreSaveAndLoad(t *testing.T) {
	local := storage.NewMemoryStore()
	ps := session.NewPersistentStore(local, nil, session.WithStoreNowTime(func() time.Time {
		return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	}))

	require.NoError(t, ps.Save(sampleProfile()))

	for _, key := range []string{storage.KeyToken, storage.KeyTokenAlt} {
		v, ok := local.Get(key)
		require.True(t, ok)
		require.Equal(t, "access-1", v)
	}
	info, _ := local.Get(storage.KeyUserInfo)
	require.NotContains(t, info, "access-1")
	require.NotContains(t, info, "refresh-1")
	lastLogin, _ := local.Get(storage.KeyLastLoginTime)
	require.Equal(t, "2024-03-01T08:00:00Z", lastLogin)

	loaded, err := ps.Load()
	require.NoError(t, err)
	require.Equal(t, sampleProfile(), *loaded)
}

func TestPersistentStoreLoad(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]string
		wantNil   bool
		corrupted bool
	}{
		{name: "empty", values: map[string]string{}, wantNil: true},
		{name: "stringified undefined", values: map[string]string{storage.KeyToken: "undefined", storage.KeyUserInfo: "null"}, wantNil: true},
		{name: "token without profile", values: map[string]string{storage.KeyToken: "t"}, corrupted: true},
		{name: "profile without token", values: map[string]string{storage.KeyUserInfo: `{"username":"a","role":"user"}`}, corrupted: true},
		{name: "profile does not parse", values: map[string]string{storage.KeyToken: "t", storage.KeyUserInfo: "{"}, corrupted: true},
		{name: "profile missing username", values: map[string]string{storage.KeyToken: "t", storage.KeyUserInfo: `{"role":"user"}`}, corrupted: true},
		{name: "secondary alias only", values: map[string]string{storage.KeyTokenAlt: "t", storage.KeyUserInfo: `{"username":"a","role":"user"}`}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			local := storage.NewMemoryStore()
			for k, v := range test.values {
				require.NoError(t, local.Set(k, v))
			}
			profile, err := session.NewPersistentStore(local, nil).Load()
			if test.corrupted {
				require.True(t, errors.Is(err, session.ErrCorruptedState))
				require.Nil(t, profile)
				return
			}
			require.NoError(t, err)
			if test.wantNil {
				require.Nil(t, profile)
				return
			}
			require.Equal(t, "t", profile.AccessToken)
		})
	}
}

func TestPersistentStoreSetTokens(t *testing.T) {
	local := storage.NewMemoryStore()
	ps := session.NewPersistentStore(local, nil)
	require.NoError(t, ps.Save(sampleProfile()))

	empty := ""
	next := "access-2"
	require.NoError(t, ps.SetTokens(&next, &empty))
	require.Equal(t, "access-2", ps.AccessToken())
	_, ok := local.Get(storage.KeyRefreshToken)
	require.False(t, ok)

	// nil access token leaves the stored one alone
	require.NoError(t, ps.SetTokens(nil, nil))
	require.Equal(t, "access-2", ps.AccessToken())
}

func TestPersistentStoreToken(t *testing.T) {
	local := storage.NewMemoryStore()
	ps := session.NewPersistentStore(local, nil)

	_, err := ps.Token()
	require.True(t, errors.Is(err, session.ErrNotLoggedIn))

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	profile := sampleProfile()
	profile.AccessToken = signedToken(t, exp)
	require.NoError(t, ps.Save(profile))

	token, err := ps.Token()
	require.NoError(t, err)
	require.Equal(t, profile.AccessToken, token.AccessToken)
	require.Equal(t, "refresh-1", token.RefreshToken)
	require.True(t, token.Expiry.Equal(exp))
	require.True(t, token.Valid())

	// opaque tokens never expire client side
	profile.AccessToken = "opaque"
	require.NoError(t, ps.Save(profile))
	token, err = ps.Token()
	require.NoError(t, err)
	require.True(t, token.Expiry.IsZero())
}

func TestPersistentStoreClear(t *testing.T) {
	local := storage.NewMemoryStore()
	ephemeral := storage.NewMemoryStore()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	origin, _ := url.Parse("http://campus.example.com/api")
	jar.SetCookies(origin, []*http.Cookie{{Name: "JSESSIONID", Value: "abc", Path: "/"}})

	ps := session.NewPersistentStore(local, ephemeral, session.WithCookies(jar, origin))
	require.NoError(t, ps.Save(sampleProfile()))
	require.NoError(t, local.Set(storage.KeyGreetingShown, "true"))
	require.NoError(t, ephemeral.Set(storage.KeySessionID, "s"))
	require.NoError(t, local.Set(storage.KeySavedUsername, "alice"))

	require.NoError(t, ps.Clear())

	for _, key := range storage.SessionKeys {
		_, ok := local.Get(key)
		require.False(t, ok, key)
		_, ok = ephemeral.Get(key)
		require.False(t, ok, key)
	}
	saved, ok := local.Get(storage.KeySavedUsername)
	require.True(t, ok)
	require.Equal(t, "alice", saved)
	for _, c := range jar.Cookies(origin) {
		require.False(t, strings.EqualFold(c.Name, "JSESSIONID"), "cookie survived")
	}
}
