package session

import (
	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/jrsteele09/campus-session-client/storage"
	"github.com/rs/zerolog/log"
)

// ErrNoSavedCredentials is returned by CredentialStore.Load when "remember me"
// is off or the saved credentials are incomplete.
var ErrNoSavedCredentials = apperrors.ErrNoSavedCredentials

const rememberMeOn = "true"

// Cipher is the credential vault contract.
type Cipher interface {
	Encrypt(plaintext string) (string, bool)
	Decrypt(ciphertext string) (string, bool)
}

// Credentials are a remembered username and its decrypted password.
type Credentials struct {
	Username string
	Password string
}

// CredentialStore keeps the "remember me" credentials. It is independent of
// the session and survives an ordinary logout.
type CredentialStore struct {
	store  storage.Store
	cipher Cipher
}

func NewCredentialStore(store storage.Store, cipher Cipher) *CredentialStore {
	return &CredentialStore{store: store, cipher: cipher}
}

// Save encrypts and stores the credentials. Nothing is written when encryption
// fails.
func (cs *CredentialStore) Save(username, password string) bool {
	encrypted, ok := cs.cipher.Encrypt(password)
	if !ok {
		log.Warn().Msg("credentials: encryption failed, remember me not saved")
		return false
	}
	for key, value := range map[string]string{
		storage.KeySavedUsername: username,
		storage.KeySavedPassword: encrypted,
		storage.KeyRememberMe:    rememberMeOn,
	} {
		if err := cs.store.Set(key, value); err != nil {
			log.Err(err).Str("key", key).Msg("credentials: save failed")
			cs.Clear()
			return false
		}
	}
	log.Debug().Str("username", username).Msg("credentials: saved for auto-login")
	return true
}

// Load returns the decrypted credentials. Credentials that are present but
// cannot be decrypted are cleared.
func (cs *CredentialStore) Load() (Credentials, error) {
	if !cs.RememberMe() || !cs.HasCredentials() {
		return Credentials{}, ErrNoSavedCredentials
	}
	encrypted, _ := cs.store.Get(storage.KeySavedPassword)
	password, ok := cs.cipher.Decrypt(encrypted)
	if !ok {
		log.Warn().Msg("credentials: saved password unreadable, clearing")
		cs.Clear()
		return Credentials{}, ErrNoSavedCredentials
	}
	return Credentials{Username: cs.SavedUsername(), Password: password}, nil
}

func (cs *CredentialStore) RememberMe() bool {
	v, _ := cs.store.Get(storage.KeyRememberMe)
	return v == rememberMeOn
}

func (cs *CredentialStore) SavedUsername() string {
	v, _ := cs.store.Get(storage.KeySavedUsername)
	return v
}

func (cs *CredentialStore) HasCredentials() bool {
	password, _ := cs.store.Get(storage.KeySavedPassword)
	return cs.SavedUsername() != "" && password != ""
}

// Clear forgets the remembered credentials.
func (cs *CredentialStore) Clear() {
	if err := storage.DeleteAll(cs.store, storage.CredentialKeys...); err != nil {
		log.Err(err).Msg("credentials: clear failed")
		return
	}
	log.Debug().Msg("credentials: cleared")
}
