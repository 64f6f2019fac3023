package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"ollama-openai-gateway/internal/cache"
)

type Config struct {
	Port   string
	APIKey string

	BackendURL           string
	BackendModel         string
	BackendTimeout       time.Duration
	BackendStreamTimeout time.Duration

	ModelName    string
	ModelOwnedBy string

	RequestTimeout time.Duration
	MaxBodyBytes   int64

	CacheBackend string // "none", "memory" or "redis"
	CacheTTL     time.Duration
	RedisAddr    string
	VersionID    string

	Env      string
	LogLevel string
}

// loadEnvFile merges path into the process environment without overriding
// variables that are already set. A missing file is only an error when the
// caller asked for it explicitly.
func loadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8000"),
		APIKey:       os.Getenv("GATEWAY_API_KEY"),
		BackendURL:   getenv("BACKEND_URL", "http://127.0.0.1:11434"),
		BackendModel: getenv("BACKEND_MODEL", "lux-assistant"),
		ModelOwnedBy: getenv("MODEL_OWNED_BY", "ollama"),
		MaxBodyBytes: 1 << 20,
		CacheBackend: getenv("CACHE_BACKEND", cache.BackendNone),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		VersionID:    getenv("GATEWAY_VERSION", "v1"),
		Env:          os.Getenv("ENV"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}
	cfg.ModelName = getenv("MODEL_NAME", cfg.BackendModel)

	var err error
	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BackendStreamTimeout, err = getDuration("BACKEND_STREAM_TIMEOUT", 120*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 75*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("GATEWAY_API_KEY is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.CacheBackend {
	case cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of none, memory, redis; got %q", c.CacheBackend)
	}
	if c.BackendTimeout <= 0 || c.BackendStreamTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
