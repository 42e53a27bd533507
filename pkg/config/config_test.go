package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CARRIERDESK_LISTEN", "CARRIERDESK_DEBUG_LISTEN", "DATABASE_URL", "API_KEY",
		"FMCSA_API_KEY", "FMCSA_BASE_URL", "FMCSA_RATE_LIMIT", "CARRIERDESK_SECRETS_DIR", "CARRIERDESK_MASTER_KEY",
		"LOG_LEVEL", "LOG_FILE", "PRICING_MAX_ROUNDS", "PRICING_MAX_BUFFER_AMOUNT", "PRICING_BUFFER_PERCENTAGE",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFromFile_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Pricing.MaxRounds)
	assert.Equal(t, "250", cfg.Pricing.MaxBufferAmount.String())
	assert.Equal(t, "0.12", cfg.Pricing.BufferPercentage.String())
	assert.Equal(t, 5*time.Second, cfg.FMCSA.Timeout)
	assert.Equal(t, 5.0, cfg.FMCSA.RateLimit)

	// API key 未配置
	assert.Error(t, cfg.Validate())
	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "carrierdesk.yaml", `
listen_addr: ":9000"
api_key: file-key
database:
  dsn: "postgres://u:p@localhost/cd?sslmode=disable"
fmcsa:
  timeout: 2s
  cache_ttl: 1m
  rate_limit: 0
pricing:
  max_rounds: 4
  max_buffer_amount: 300
  buffer_percentage: 0.1
log:
  level: debug
`)
	t.Setenv("API_KEY", "env-key")

	cfg, err := LoadFromFile(p)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "env-key", cfg.APIKey, "env wins over file")
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.FMCSA.Timeout)
	assert.Equal(t, time.Minute, cfg.FMCSA.CacheTTL)
	assert.Zero(t, cfg.FMCSA.RateLimit, "explicit 0 disables the limiter")
	assert.Equal(t, 4, cfg.Pricing.MaxRounds)
	assert.Equal(t, "300", cfg.Pricing.MaxBufferAmount.String())
	assert.Equal(t, "0.1", cfg.Pricing.BufferPercentage.String())
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_JSON(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "carrierdesk.json", `{"api_key":"j","database":{"dsn":"file.db"}}`)
	cfg, err := LoadFromFile(p)
	require.NoError(t, err)
	assert.Equal(t, "j", cfg.APIKey)
	assert.Equal(t, "file.db", cfg.Database.DSN)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromFile(writeFile(t, "c.toml", "x = 1"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "c.yaml", "fmcsa:\n  timeout: soon\n"))
	assert.Error(t, err)

	t.Setenv("PRICING_BUFFER_PERCENTAGE", "twelve")
	_, err = LoadFromFile("")
	assert.Error(t, err)

	t.Setenv("PRICING_BUFFER_PERCENTAGE", "")
	t.Setenv("FMCSA_RATE_LIMIT", "fast")
	_, err = LoadFromFile("")
	assert.Error(t, err)

	t.Setenv("FMCSA_RATE_LIMIT", "")
	t.Setenv("PRICING_MAX_ROUNDS", "three")
	_, err = LoadFromFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRICING_MAX_ROUNDS")
}

func TestValidate_Pricing(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "k")
	t.Setenv("PRICING_MAX_ROUNDS", "0")
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestApplySecrets(t *testing.T) {
	secrets := map[string]string{"API_KEY": "from-store", "FMCSA_API_KEY": "fm-store"}
	lookup := func(k string) string { return secrets[k] }

	cfg := Default()
	cfg.ApplySecrets(lookup)
	assert.Equal(t, "from-store", cfg.APIKey)
	assert.Equal(t, "fm-store", cfg.FMCSA.APIKey)

	cfg = Default()
	cfg.APIKey = "env"
	cfg.FMCSA.APIKey = "env-fm"
	cfg.ApplySecrets(lookup)
	assert.Equal(t, "env", cfg.APIKey)
	assert.Equal(t, "env-fm", cfg.FMCSA.APIKey)

	cfg.ApplySecrets(nil)
}

func TestDriverFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://a/b":           DriverPostgres,
		"POSTGRESQL://a/b":         DriverPostgres,
		"data/carrierdesk.db":      DriverSQLite,
		"file:x?mode=memory":       DriverSQLite,
		"  postgres://spaced/db  ": DriverPostgres,
	}
	for dsn, want := range cases {
		assert.Equal(t, want, DriverFromDSN(dsn), dsn)
	}
}
