package config

import (
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	HTTPConfig
	StorageConfig
	SecurityConfig
	CorsConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetRoutesFile() string
	GetDevBackendPort() string
	GetDevBackendJWTSecret() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	HTTP
	Storage
	Security
	Cors
}

func New() Config {
	return mainConfig{}
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range values {
			if GetEnv(k, "") == "" {
				if err := setEnv(k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
