package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner  = "0x1111111111111111111111111111111111111111"
	testOracle = "0x2222222222222222222222222222222222222222"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Owner = testOwner
	cfg.Engine.Oracle = testOracle
	return cfg
}

func TestValidateDefaultsWithOwner(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateMissingOwner(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner address must not be empty")
}

func TestValidateBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidateInvalidOracleAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Oracle = "not-an-address"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid address")
}

func TestValidateDriverModeRequiresOracle(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "fluctuate"
	cfg.Engine.Oracle = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle address is required")
}

func TestValidateSimulateBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Simulate.Enabled = true
	cfg.Simulate.FluctuationPct = 150
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fluctuation_pct")
}

func TestLoadParsesTOMLAndDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketd.toml")
	data := `
mode = "full"

[engine]
owner = "` + testOwner + `"
oracle = "` + testOracle + `"

[sync]
enabled = true
interval = "45s"

[simulate]
enabled = true
interval = "2m"
max_step_bp = 150
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, testOwner, cfg.Engine.Owner)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Simulate.Interval.Duration)
	assert.Equal(t, int64(150), cfg.Simulate.MaxStepBp)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.Feed.FetchLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketd.toml")
	data := `
[engine]
owner = "` + testOwner + `"

[server]
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("MARKETD_SERVER_PORT", "9100")
	t.Setenv("MARKETD_REDIS_PASSWORD", "hunter2")
	t.Setenv("MARKETD_SYNC_INTERVAL", "10s")
	t.Setenv("MARKETD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARKETD_SIMULATE_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Simulate.Enabled)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Originals are untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
	assert.Equal(t, "api-secret", cfg.Server.APIKey)
	// Empty secrets stay empty rather than being replaced.
	assert.Empty(t, red.Notify.DiscordWebhookURL)
}

func TestOracleAddressZeroWhenUnset(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Oracle = ""
	assert.Equal(t, "0x0000000000000000000000000000000000000000", cfg.OracleAddress().Hex())
	assert.Equal(t, testOwner, cfg.OwnerAddress().Hex())
}
