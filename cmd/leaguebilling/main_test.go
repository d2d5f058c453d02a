package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/leaguebilling/pkg/config"
)

func TestRootCmd(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "reconcile"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), version)
}

func TestAppConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		var cfg appConfig
		require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{})))
		assert.Equal(t, "development", cfg.Env)
		assert.Empty(t, cfg.ReconcileSchedule)
		assert.Equal(t, 100, cfg.ReconcileBatch)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		var cfg appConfig
		require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{
			"RECONCILE_SCHEDULE": "@every 15m",
			"RECONCILE_BATCH":    "25",
			"APP_ENV":            "production",
		})))
		assert.Equal(t, "@every 15m", cfg.ReconcileSchedule)
		assert.Equal(t, 25, cfg.ReconcileBatch)
		assert.Equal(t, "production", cfg.Env)
	})
}
