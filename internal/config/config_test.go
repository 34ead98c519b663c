package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/campus-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEncryptionKey(t *testing.T) {
	t.Run("dev default", func(t *testing.T) {
		t.Setenv("ENV", "")
		t.Setenv("ENCRYPTION_KEY", "")
		key, err := config.New().GetEncryptionKey()
		require.NoError(t, err)
		require.NotEmpty(t, key)
	})

	t.Run("required in production", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("ENCRYPTION_KEY", "")
		_, err := config.New().GetEncryptionKey()
		require.ErrorIs(t, err, config.ErrMissingEncryptionKey)
	})

	t.Run("explicit key", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("ENCRYPTION_KEY", "s3cret")
		key, err := config.New().GetEncryptionKey()
		require.NoError(t, err)
		require.Equal(t, "s3cret", key)
	})
}

func TestRequestTimeout(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("ENV", "PROD")
	require.Equal(t, 30*time.Second, config.New().GetRequestTimeout())

	t.Setenv("ENV", "DEV")
	require.Equal(t, 10*time.Minute, config.New().GetRequestTimeout())

	t.Setenv("REQUEST_TIMEOUT", "5s")
	require.Equal(t, 5*time.Second, config.New().GetRequestTimeout())
}

func TestAPIBaseURLTrimsSlash(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://backend:9000/api/")
	require.Equal(t, "http://backend:9000/api", config.New().GetAPIBaseURL())
}

func TestBadCredentialKeywords(t *testing.T) {
	t.Setenv("BAD_CREDENTIAL_KEYWORDS", " wrong , ,denied")
	require.Equal(t, []string{"wrong", "denied"}, config.New().GetBadCredentialKeywords())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=FromFile\nSTORAGE_BACKEND=memory\n"), 0o600))

	t.Setenv("APP_NAME", "")
	t.Setenv("STORAGE_BACKEND", "redis")
	require.NoError(t, config.LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	cfg := config.New()
	require.Equal(t, "FromFile", cfg.GetAppName())
	require.Equal(t, "redis", cfg.GetStorageBackend())
}
