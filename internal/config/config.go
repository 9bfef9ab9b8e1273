// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string
	AdminToken  string
	LogLevel    string

	PostInterval    time.Duration
	PresenceTTL     time.Duration
	PresenceBackend string
	RedisAddr       string

	HotRatio  float64
	FeedLimit int

	Blocklist   []string
	CrisisTerms []string
}

func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     getenv("DATABASE_URL", "sqlite://drops.db"),
		CORSOrigin:      getenv("CORS_ORIGIN", "*"),
		AdminToken:      getenv("X_ADMIN_TOKEN", ""),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		PresenceBackend: strings.ToLower(getenv("PRESENCE_BACKEND", "memory")),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		Blocklist:       list(getenv("BLOCKLIST", "")),
		CrisisTerms:     list(getenv("CRISIS_TERMS", "")),
	}

	var err error
	if cfg.PostInterval, err = duration("POST_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PostInterval < 0 {
		return Config{}, fmt.Errorf("POST_INTERVAL must not be negative, got %s", cfg.PostInterval)
	}
	if cfg.PresenceTTL, err = duration("PRESENCE_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTTL <= 0 {
		return Config{}, fmt.Errorf("PRESENCE_TTL must be positive, got %s", cfg.PresenceTTL)
	}
	if cfg.HotRatio, err = float("HOT_RATIO", 0.4); err != nil {
		return Config{}, err
	}
	if cfg.HotRatio < 0 || cfg.HotRatio > 1 {
		return Config{}, fmt.Errorf("HOT_RATIO must be within [0,1], got %v", cfg.HotRatio)
	}
	if cfg.FeedLimit, err = integer("FEED_LIMIT", 100); err != nil {
		return Config{}, err
	}

	switch cfg.PresenceBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("PRESENCE_BACKEND=redis needs REDIS_ADDR")
		}
	default:
		return Config{}, fmt.Errorf("unknown PRESENCE_BACKEND %q", cfg.PresenceBackend)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func float(key string, def float64) (float64, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func integer(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
