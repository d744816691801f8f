package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Ordering.TxTimeout)
	assert.Equal(t, "existence", cfg.Ordering.EligibilityPolicy)
	assert.Empty(t, cfg.Database.URL, "memory stores by default")
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KIOSK_SERVER_ADDR", ":9090")
	t.Setenv("KIOSK_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("KIOSK_ORDERING_ELIGIBILITY_POLICY", "validity")
	t.Setenv("KIOSK_ORDERING_TX_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "validity", cfg.Ordering.EligibilityPolicy)
	assert.Equal(t, 2*time.Second, cfg.Ordering.TxTimeout)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ordering:\n  timezone: UTC\n  expiring_soon_days: 14\n"), 0o600))
	t.Setenv("KIOSK_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Ordering.TimeZone)
	assert.Equal(t, 14, cfg.Ordering.ExpiringSoonDays)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	t.Run("unknown policy", func(t *testing.T) {
		t.Setenv("KIOSK_ORDERING_ELIGIBILITY_POLICY", "sometimes")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown time zone", func(t *testing.T) {
		t.Setenv("KIOSK_ORDERING_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("dev signing key in production", func(t *testing.T) {
		t.Setenv("KIOSK_ENV", "production")
		_, err := Load()
		assert.Error(t, err)
	})
}
