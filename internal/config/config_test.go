package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.PushTransport)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, "sushi", cfg.RedisPrefix)
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUSHI_PUSH_TRANSPORT", "nats")
	t.Setenv("SUSHI_REQUEST_TIMEOUT", "3s")
	t.Setenv("SUSHI_REDIS_DB", "4")
	t.Setenv("SUSHI_LOG_LEVEL", "debug")
	t.Setenv("SUSHI_TOKEN", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportNATS, cfg.PushTransport)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.RedisDB)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"transport": {"SUSHI_PUSH_TRANSPORT", "carrier-pigeon"},
		"duration":  {"SUSHI_REQUEST_TIMEOUT", "soon"},
		"timeout":   {"SUSHI_REQUEST_TIMEOUT", "0s"},
		"level":     {"SUSHI_LOG_LEVEL", "loud"},
		"db":        {"SUSHI_REDIS_DB", "zero"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseEnvPrefixesErrors(t *testing.T) {
	var cfg struct {
		Port int `env:"SUSHI_TEST_PORT"`
	}
	t.Setenv("SUSHI_TEST_PORT", "not-an-int")
	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
