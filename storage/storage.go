// Package storage provides the client-side key/value stores that hold the
// session tokens, the profile and remembered credentials.
package storage

import (
	"strings"

	"github.com/pkg/errors"
)

// Fixed key set. The access token is written under two aliases for
// compatibility with older clients; readers prefer Token over TokenAlt.
const (
	KeyToken              = "userToken"
	KeyTokenAlt           = "token"
	KeyRefreshToken       = "refreshToken"
	KeyUserInfo           = "userInfo"
	KeySavedUsername      = "saved_username"
	KeySavedPassword      = "saved_password"
	KeyRememberMe         = "remember_me"
	KeyRedirectAfterLogin = "redirectAfterLogin"

	// auxiliary session markers, only ever removed
	KeyUsername             = "username"
	KeyUserID               = "userId"
	KeySessionID            = "sessionId"
	KeyLastLoginTime        = "lastLoginTime"
	KeyGreetingShown        = "system_greeting_shown"
	KeyGreetingShownExpires = "system_greeting_shown_expires"
)

// SessionKeys is everything a logout removes. Remembered credentials are not
// part of it.
var SessionKeys = []string{
	KeyToken,
	KeyTokenAlt,
	KeyRefreshToken,
	KeyUserInfo,
	KeyUsername,
	KeyUserID,
	KeySessionID,
	KeyLastLoginTime,
	KeyRedirectAfterLogin,
	KeyGreetingShown,
	KeyGreetingShownExpires,
}

// CredentialKeys hold the "remember me" state.
var CredentialKeys = []string{
	KeySavedUsername,
	KeySavedPassword,
	KeyRememberMe,
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Store is a string key/value store. Get reports false for a missing key.
// Implementations are safe for concurrent use.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// DeleteAll removes every key, returning the first failure after trying all.
func DeleteAll(s Store, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Delete(key); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "delete %q", key)
		}
	}
	return firstErr
}

// Open builds the durable store named by backend. location is a file path for
// the file backend and a redis URL for the redis backend.
func Open(backend, location, prefix string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(location)
	case BackendRedis:
		return NewRedisStoreFromURL(location, prefix)
	}
	return nil, errors.Errorf("[storage.Open] unknown storage backend %q", backend)
}
