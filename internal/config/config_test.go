package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"LLM_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "STORE_BACKEND", "CRON_SECRET",
		"TRIGGER_RPM", "ENABLE_SCHEDULER", "DIGEST_SCHEDULE", "HTTP_ADDR", "DEBUG",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, float64(6), cfg.TriggerRPM)
	assert.Equal(t, 10*time.Minute, cfg.TriggerTimeout)
	assert.Equal(t, "0 10 * * 1", cfg.DigestSchedule)
	assert.False(t, cfg.EnableScheduler)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("STORE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/xrp")
	t.Setenv("TRIGGER_RPM", "2.5")
	t.Setenv("ENABLE_SCHEDULER", "true")
	t.Setenv("LEDGER_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLMAPIKey)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 2.5, cfg.TriggerRPM)
	assert.True(t, cfg.EnableScheduler)
	assert.Equal(t, 15*time.Second, cfg.LedgerTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMAPIKey:    "sk-test",
			StoreBackend: BackendMongo,
			MongoURI:     "mongodb://localhost:27017",
			MongoDB:      "xrpdigest",
			TriggerRPM:   6,
		}
	}

	require.NoError(t, valid().Validate())

	noSecret := valid()
	noSecret.CronSecret = ""
	assert.NoError(t, noSecret.Validate())

	noKey := valid()
	noKey.LLMAPIKey = ""
	assert.ErrorIs(t, noKey.Validate(), ErrMissingAPIKey)

	pg := valid()
	pg.StoreBackend = BackendPostgres
	assert.ErrorContains(t, pg.Validate(), "DATABASE_URL")
	pg.DatabaseURL = "postgres://localhost/xrp"
	assert.NoError(t, pg.Validate())

	unknown := valid()
	unknown.StoreBackend = "sqlite"
	assert.ErrorContains(t, unknown.Validate(), "unknown STORE_BACKEND")

	noMongo := valid()
	noMongo.MongoURI = ""
	assert.Error(t, noMongo.Validate())

	badRPM := valid()
	badRPM.TriggerRPM = 0
	assert.Error(t, badRPM.Validate())
}
