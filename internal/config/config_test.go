package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "POST_INTERVAL", "PRESENCE_TTL", "PRESENCE_BACKEND", "HOT_RATIO", "FEED_LIMIT", "BLOCKLIST"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite://drops.db", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.PostInterval)
	assert.Equal(t, time.Minute, cfg.PresenceTTL)
	assert.Equal(t, "memory", cfg.PresenceBackend)
	assert.InDelta(t, 0.4, cfg.HotRatio, 1e-9)
	assert.Equal(t, 100, cfg.FeedLimit)
	assert.Empty(t, cfg.Blocklist)
}

func TestOverrides(t *testing.T) {
	t.Setenv("POST_INTERVAL", "2m")
	t.Setenv("HOT_RATIO", "0.25")
	t.Setenv("PRESENCE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BLOCKLIST", " slur, other ,,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.PostInterval)
	assert.InDelta(t, 0.25, cfg.HotRatio, 1e-9)
	assert.Equal(t, "redis", cfg.PresenceBackend)
	assert.Equal(t, []string{"slur", "other"}, cfg.Blocklist)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":  {"POST_INTERVAL", "soon"},
		"bad ratio":     {"HOT_RATIO", "1.5"},
		"bad limit":     {"FEED_LIMIT", "many"},
		"bad backend":   {"PRESENCE_BACKEND", "etcd"},
		"redis no addr": {"PRESENCE_BACKEND", "redis"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
