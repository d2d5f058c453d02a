package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/leaguebilling/pkg/config"
)

type gatewayConfig struct {
	SecretKey string        `env:"STRIPE_SECRET_KEY,required"`
	Timeout   time.Duration `env:"STRIPE_TIMEOUT" envDefault:"30s"`
	Retries   int           `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("parses explicit environment with defaults", func(t *testing.T) {
		t.Parallel()
		var cfg gatewayConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{
			"STRIPE_SECRET_KEY": "sk_test_123",
			"STRIPE_TIMEOUT":    "5s",
		}))
		require.NoError(t, err)
		assert.Equal(t, "sk_test_123", cfg.SecretKey)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, 2, cfg.Retries)
	})

	t.Run("missing required variable", func(t *testing.T) {
		t.Parallel()
		var cfg gatewayConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		require.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		var cfg gatewayConfig
		err := config.Load(&cfg,
			config.WithPrefix("BILLING_"),
			config.WithEnvironment(map[string]string{
				"BILLING_STRIPE_SECRET_KEY": "sk_prefixed",
				"STRIPE_SECRET_KEY":         "sk_ignored",
			}))
		require.NoError(t, err)
		assert.Equal(t, "sk_prefixed", cfg.SecretKey)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		var cfg *gatewayConfig
		require.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("missing explicit env file", func(t *testing.T) {
		t.Parallel()
		var cfg gatewayConfig
		err := config.Load(&cfg, config.WithEnvFiles(filepath.Join(t.TempDir(), "nope.env")))
		require.ErrorIs(t, err, config.ErrEnvFile)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LB_TEST_ONLY_KEY=from_file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("LB_TEST_ONLY_KEY") })

	var cfg struct {
		Key string `env:"LB_TEST_ONLY_KEY,required"`
	}
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
	assert.Equal(t, "from_file", cfg.Key)
}

func TestMustLoad(t *testing.T) {
	t.Parallel()

	var cfg gatewayConfig
	assert.Panics(t, func() {
		config.MustLoad(&cfg, config.WithEnvironment(map[string]string{}))
	})
}
