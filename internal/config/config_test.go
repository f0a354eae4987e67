package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0644))
	return tmp
}

func TestLoadFromConfigFilePath(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
database:
  path: /tmp/ledger.db
lending:
  max_interest_bps: 2500
  faucet_enabled: true
reputation:
  interval: 30s
  store: redis
redis:
  addr: cache:6379
  db: 2
`)

	cfg, err := LoadFromConfigFilePath(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	assert.Equal(t, uint32(1), cfg.Lending.MinInterestBPS, "unset keys keep defaults")
	assert.Equal(t, uint32(2500), cfg.Lending.MaxInterestBPS)
	assert.Equal(t, 32, cfg.Lending.MaxLenders)
	assert.Equal(t, int32(6), cfg.Lending.DisplayDecimals)
	assert.True(t, cfg.Lending.FaucetEnabled)
	assert.Equal(t, 30*time.Second, cfg.Reputation.Interval)
	assert.Equal(t, StoreRedis, cfg.Reputation.Store)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "reputation:records", cfg.Redis.Key)
}

func TestLoadFromConfigFilePath_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 9090\n")
	t.Setenv("PORT", "7070")
	t.Setenv("DB_PATH", "env.db")
	t.Setenv("MAX_LENDERS", "8")
	t.Setenv("FAUCET_ENABLED", "true")
	t.Setenv("REPUTATION_INTERVAL", "15")
	t.Setenv("REPUTATION_STORE", "FILE")

	cfg, err := LoadFromConfigFilePath(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Lending.MaxLenders)
	assert.True(t, cfg.Lending.FaucetEnabled)
	assert.Equal(t, 15*time.Second, cfg.Reputation.Interval)
	assert.Equal(t, StoreFile, cfg.Reputation.Store)
}

func TestLoadFromConfigFilePath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromConfigFilePath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Reputation, cfg.Reputation)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromConfigFilePath_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	_, err := LoadFromConfigFilePath(path)
	assert.Error(t, err)
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"port out of range", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"empty db path", func(c *AppConfig) { c.Database.Path = " " }},
		{"min interest zero", func(c *AppConfig) { c.Lending.MinInterestBPS = 0 }},
		{"min above max interest", func(c *AppConfig) { c.Lending.MinInterestBPS = 6000 }},
		{"max interest above whole", func(c *AppConfig) { c.Lending.MaxInterestBPS = 20000 }},
		{"no lenders allowed", func(c *AppConfig) { c.Lending.MaxLenders = 0 }},
		{"negative max duration", func(c *AppConfig) { c.Lending.MaxDurationSeconds = -1 }},
		{"display decimals too large", func(c *AppConfig) { c.Lending.DisplayDecimals = 19 }},
		{"interval too short", func(c *AppConfig) { c.Reputation.Interval = 100 * time.Millisecond }},
		{"score bounds inverted", func(c *AppConfig) { c.Reputation.MinScore = 101 }},
		{"initial outside bounds", func(c *AppConfig) { c.Reputation.InitialScore = 120 }},
		{"negative decrement", func(c *AppConfig) { c.Reputation.Decrement = -1 }},
		{"unknown store", func(c *AppConfig) { c.Reputation.Store = "s3" }},
		{"file store without path", func(c *AppConfig) { c.Reputation.FilePath = "" }},
		{"redis store without addr", func(c *AppConfig) {
			c.Reputation.Store = StoreRedis
			c.Redis.Addr = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, validateConfig(c))
		})
	}

	assert.NoError(t, validateConfig(Default()))
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("CFG_INT", "abc")
	assert.Equal(t, 5, GetEnvOrDefaultAsInt("CFG_INT", 5))

	t.Setenv("CFG_UINT", "-3")
	assert.Equal(t, uint64(9), GetEnvOrDefaultAsUint64("CFG_UINT", 9))

	t.Setenv("CFG_STR", "   ")
	assert.Equal(t, "fallback", GetEnvOrDefaultAsString("CFG_STR", "fallback"))

	t.Setenv("CFG_BOOL", "1")
	assert.True(t, GetEnvOrDefaultAsBool("CFG_BOOL", false))
	t.Setenv("CFG_BOOL", "maybe")
	assert.True(t, GetEnvOrDefaultAsBool("CFG_BOOL", true))

	t.Setenv("CFG_DUR", "2m")
	assert.Equal(t, 2*time.Minute, GetEnvOrDefaultAsDuration("CFG_DUR", time.Second))
	t.Setenv("CFG_DUR", "soon")
	assert.Equal(t, time.Second, GetEnvOrDefaultAsDuration("CFG_DUR", time.Second))
}

func TestLoadFromConfig_UsesConfigPath(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 6060\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadFromConfig()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}
