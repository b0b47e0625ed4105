package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 5*time.Second, cfg.Redirect.Deadline)
	assert.True(t, cfg.Redirect.FuzzyFallback)
	assert.Equal(t, []string{"/r/", "/go/"}, cfg.Redirect.RoutePrefixes)
	assert.EqualValues(t, 25, cfg.Quota.Links)
	assert.EqualValues(t, 10, cfg.Quota.QRCodes)
	assert.EqualValues(t, 5, cfg.Quota.CustomBackHalves)
	assert.Empty(t, cfg.KafkaBrokers())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/links?sslmode=disable")
	t.Setenv("RESOLVER_FUZZY_FALLBACK", "false")
	t.Setenv("REDIRECT_DEADLINE", "2s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("QUOTA_LINKS", "100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.False(t, cfg.Redirect.FuzzyFallback)
	assert.Equal(t, 2*time.Second, cfg.Redirect.Deadline)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers())
	assert.EqualValues(t, 100, cfg.Quota.Links)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BASE_URL=https://sho.rt\nGEO_TOKEN=abc\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BASE_URL")
		os.Unsetenv("GEO_TOKEN")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sho.rt", cfg.Redirect.BaseURL)
	assert.Equal(t, "abc", cfg.Geo.Token)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load("")
		assert.ErrorContains(t, err, "DB_DRIVER")
	})

	t.Run("base url", func(t *testing.T) {
		t.Setenv("BASE_URL", "sho.rt")
		_, err := Load("")
		assert.ErrorContains(t, err, "BASE_URL")
	})

	t.Run("prefix", func(t *testing.T) {
		t.Setenv("RESOLVER_ROUTE_PREFIXES", "r")
		_, err := Load("")
		assert.ErrorContains(t, err, "route prefix")
	})
}

func TestUsage(t *testing.T) {
	text, err := Usage()
	require.NoError(t, err)
	assert.Contains(t, text, "RESOLVER_FUZZY_FALLBACK")
	assert.Contains(t, text, "informational QR code allowance, not enforced")
}
