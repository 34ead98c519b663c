package config

type StorageConfig interface {
	GetStorageBackend() string
	GetStoragePath() string
	GetRedisURL() string
	GetRedisPrefix() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStorageBackend is one of memory, file or redis.
func (Storage) GetStorageBackend() string {
	return GetEnv("STORAGE_BACKEND", "file")
}

func (Storage) GetStoragePath() string {
	return GetEnv("STORAGE_PATH", "./data/session.json")
}

func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

func (Storage) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "campus:")
}
