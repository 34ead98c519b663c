package vault_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/jrsteele09/campus-session-client/vault"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func newVault(t *testing.T, options ...vault.VaultOption) *vault.Vault {
	t.Helper()
	v, err := vault.New(testSecret, options...)
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newVault(t)

	for _, password := range []string{"password123", "", "密码 with spaces", "p@$$w0rd!\n\t", "pa\xffss"} {
		ciphertext, ok := v.Encrypt(password)
		require.True(t, ok)

		plaintext, ok := v.Decrypt(ciphertext)
		require.True(t, ok)
		require.Equal(t, password, plaintext)
	}
}

func TestVault_NonDeterministic(t *testing.T) {
	v := newVault(t)

	first, ok := v.Encrypt("same-password")
	require.True(t, ok)
	second, ok := v.Encrypt("same-password")
	require.True(t, ok)
	require.NotEqual(t, first, second)
}

func TestVault_DecryptRejects(t *testing.T) {
	v := newVault(t)
	valid, ok := v.Encrypt("password123")
	require.True(t, ok)

	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)
	tampered := append([]byte{}, raw...)
	tampered[len(tampered)-1] ^= 0xff
	wrongVersion := append([]byte{}, raw...)
	wrongVersion[0] = 9

	other, err := vault.New("a-different-secret")
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
		v          *vault.Vault
	}{
		{name: "garbage", ciphertext: "not base64 at all!", v: v},
		{name: "empty", ciphertext: "", v: v},
		{name: "too short", ciphertext: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), v: v},
		{name: "tampered", ciphertext: base64.StdEncoding.EncodeToString(tampered), v: v},
		{name: "wrong version", ciphertext: base64.StdEncoding.EncodeToString(wrongVersion), v: v},
		{name: "secret mismatch", ciphertext: valid, v: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext, ok := tt.v.Decrypt(tt.ciphertext)
			require.False(t, ok)
			require.Empty(t, plaintext)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestVault_EncryptFailureIsQuiet(t *testing.T) {
	v := newVault(t, vault.WithRandom(failingReader{}))
	ciphertext, ok := v.Encrypt("password123")
	require.False(t, ok)
	require.Empty(t, ciphertext)
}

func TestVault_EmptySecret(t *testing.T) {
	_, err := vault.New("")
	require.ErrorIs(t, err, vault.ErrEmptySecret)
}
