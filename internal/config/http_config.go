package config

import (
	"strings"
	"time"
)

type HTTPConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

// GetAPIBaseURL returns the backend base URL every contract path is resolved against.
func (HTTP) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv("API_BASE_URL", "http://localhost:8080/api"), "/")
}

// GetRequestTimeout bounds every round trip, including the re-authentication one.
// Development builds wait much longer because AI endpoints are slow locally.
func (HTTP) GetRequestTimeout() time.Duration {
	if currentEnv() == EnvDev {
		return GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Minute)
	}
	return GetEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second)
}
