package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAKPOST_USE_MOCK", "true")
	t.Setenv("TCS_USE_MOCK", "true")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.CarrierTokenTTL)
	assert.Equal(t, "/ecom/api/booking/simulate", cfg.TCSFeePath)
	assert.Equal(t, "NOWSHERA", cfg.SenderCity)
	assert.False(t, cfg.DebugPayloads)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("PAKPOST_ENABLED", "false")
	t.Setenv("TCS_ENABLED", "false")
	t.Setenv("CARRIER_TOKEN_TTL", "5m")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.CarrierTokenTTL)
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		t.Setenv("PAKPOST_USE_MOCK", "true")
		t.Setenv("TCS_USE_MOCK", "true")

		_, err := config.Load()
		assert.ErrorContains(t, err, "DB_DRIVER")
	})

	t.Run("missing tcs bearer", func(t *testing.T) {
		t.Setenv("PAKPOST_USE_MOCK", "true")
		t.Setenv("TCS_BEARER_TOKEN", "")

		_, err := config.Load()
		assert.ErrorContains(t, err, "TCS_BEARER_TOKEN")
	})
}

func TestConfig_Attributes(t *testing.T) {
	cfg := &config.Config{ServiceName: "svc", Version: "1.2.3", DBDriver: "sqlite", TCSEnabled: true}

	attrs := cfg.Attributes()

	values := map[string]string{}
	for _, kv := range attrs {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "svc", values["service.name"])
	assert.Equal(t, "sqlite", values["db.system"])
	assert.Equal(t, "true", values["tcs.enabled"])
	assert.Equal(t, "false", values["pakpost.enabled"])
}
