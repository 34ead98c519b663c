package config

import "errors"

// developmentEncryptionKey only exists so local builds work out of the box.
// Every other environment must provide ENCRYPTION_KEY.
const developmentEncryptionKey = "luoshdkknwbsasdsasw"

var ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY is required outside DEV")

type SecurityConfig interface {
	GetEncryptionKey() (string, error)
	GetBadCredentialKeywords() []string
	GetAutoLoginQueueLimit() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetEncryptionKey() (string, error) {
	key := GetEnv("ENCRYPTION_KEY", "")
	if key != "" {
		return key, nil
	}
	if currentEnv() == EnvDev {
		return developmentEncryptionKey, nil
	}
	return "", ErrMissingEncryptionKey
}

// GetBadCredentialKeywords lists substrings of a login failure message that mean
// the saved username or password is wrong, rather than a transient failure.
func (Security) GetBadCredentialKeywords() []string {
	return GetEnvAsList("BAD_CREDENTIAL_KEYWORDS", []string{"密码", "用户名", "password", "username", "credential"})
}

func (Security) GetAutoLoginQueueLimit() int {
	return GetEnvAsInt("AUTOLOGIN_QUEUE_LIMIT", 1024)
}
