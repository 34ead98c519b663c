// Package vault obfuscates a remembered password before it is written to
// client storage.
//
// The secret is shipped with every client, so the vault only protects against
// casual inspection of the storage. It is not a trust boundary.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	formatVersion    byte = 1
	saltLength            = 16
	keyLength             = chacha20poly1305.KeySize
	pbkdf2Iterations      = 10000
)

// ErrEmptySecret is returned by New when no secret is configured.
var ErrEmptySecret = errors.New("vault secret is empty")

// payload is the sealed record. P holds the raw password bytes so any Go
// string survives the JSON round trip. T and R make repeated encryptions of
// the same password differ.
type payload struct {
	P []byte `json:"p"`
	T int64  `json:"t"`
	R string `json:"r"`
}

// Vault encrypts and decrypts passwords under a static application secret.
type Vault struct {
	secret  []byte
	nowTime func() time.Time
	random  io.Reader
}

// VaultOption defines a function type to modify the Vault instance.
type VaultOption func(*Vault)

// WithNowTime sets the clock used for the payload timestamp (primarily for testing)
func WithNowTime(nowFunc func() time.Time) VaultOption {
	return func(v *Vault) {
		v.nowTime = nowFunc
	}
}

// WithRandom sets the entropy source (primarily for testing failure paths)
func WithRandom(r io.Reader) VaultOption {
	return func(v *Vault) {
		v.random = r
	}
}

func New(secret string, options ...VaultOption) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	v := &Vault{
		secret:  []byte(secret),
		nowTime: time.Now,
		random:  rand.Reader,
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// Encrypt seals the password. It never fails loudly: on any internal error it
// logs and returns ok == false.
func (v *Vault) Encrypt(password string) (string, bool) {
	ciphertext, err := v.encrypt(password)
	if err != nil {
		log.Warn().Err(err).Msg("credential vault: encrypt failed")
		return "", false
	}
	return ciphertext, true
}

// Decrypt opens a value produced by Encrypt. Malformed input, a different
// secret or a payload without a password all yield ok == false.
func (v *Vault) Decrypt(ciphertext string) (string, bool) {
	password, err := v.decrypt(ciphertext)
	if err != nil {
		log.Debug().Err(err).Msg("credential vault: decrypt failed")
		return "", false
	}
	return password, true
}

func (v *Vault) encrypt(password string) (string, error) {
	plaintext, err := json.Marshal(payload{
		P: []byte(password),
		T: v.nowTime().UnixMilli(),
		R: uuid.New().String(),
	})
	if err != nil {
		return "", errors.Wrap(err, "[Vault.encrypt] marshal payload")
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(v.random, salt); err != nil {
		return "", errors.Wrap(err, "[Vault.encrypt] read salt")
	}
	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return "", errors.Wrap(err, "[Vault.encrypt] cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(v.random, nonce); err != nil {
		return "", errors.Wrap(err, "[Vault.encrypt] read nonce")
	}

	out := make([]byte, 0, 1+saltLength+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, formatVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{formatVersion})
	return base64.StdEncoding.EncodeToString(out), nil
}

func (v *Vault) decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "[Vault.decrypt] base64")
	}
	headerLength := 1 + saltLength + chacha20poly1305.NonceSizeX
	if len(raw) < headerLength+chacha20poly1305.Overhead {
		return "", errors.New("[Vault.decrypt] ciphertext too short")
	}
	if raw[0] != formatVersion {
		return "", errors.Errorf("[Vault.decrypt] unknown format version %d", raw[0])
	}

	salt := raw[1 : 1+saltLength]
	nonce := raw[1+saltLength : headerLength]
	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return "", errors.Wrap(err, "[Vault.decrypt] cipher")
	}
	plaintext, err := aead.Open(nil, nonce, raw[headerLength:], []byte{formatVersion})
	if err != nil {
		return "", errors.Wrap(err, "[Vault.decrypt] open")
	}

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return "", errors.Wrap(err, "[Vault.decrypt] unmarshal payload")
	}
	if p.P == nil {
		return "", errors.New("[Vault.decrypt] payload has no password")
	}
	return string(p.P), nil
}

func (v *Vault) deriveKey(salt []byte) []byte {
	return pbkdf2.Key(v.secret, salt, pbkdf2Iterations, keyLength, sha256.New)
}
