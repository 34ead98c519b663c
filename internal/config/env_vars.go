package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	logLevelVar = "LOG_LEVEL"
	routesVar   = "ROUTES_FILE"

	devBackendPortVar   = "DEVBACKEND_PORT"
	devBackendSecretVar = "DEVBACKEND_JWT_SECRET"

	// EnvDev is the development environment name.
	EnvDev = "DEV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Campus Study")
}

func (EnvVars) GetEnv() string {
	return currentEnv()
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetRoutesFile returns an optional YAML route table overriding the built-in one.
func (EnvVars) GetRoutesFile() string {
	return GetEnv(routesVar, "")
}

func (EnvVars) GetDevBackendPort() string {
	port := GetEnv(devBackendPortVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetDevBackendJWTSecret() string {
	return GetEnv(devBackendSecretVar, "dev-backend-signing-secret")
}

func currentEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return EnvDev
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvAsDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// GetEnvAsList splits a comma separated variable, dropping empty items.
func GetEnvAsList(envVar string, defaultValue []string) []string {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func setEnv(key, value string) error {
	return os.Setenv(key, value)
}
