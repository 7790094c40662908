package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, 15*time.Minute, c.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL)
	assert.Equal(t, 24*time.Hour, c.VerificationTTL)
	assert.Equal(t, time.Hour, c.ResetTTL)
	assert.Equal(t, 3, c.RetryMaxAttempts)
	assert.Equal(t, "@every 1h", c.CleanupSchedule)
	assert.False(t, c.AutoVerifyEmail)
	assert.False(t, c.IsProduction())
	assert.NoError(t, c.Validate())
}

func TestLoad_NoArgsUsesDefaults(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeTempConfig(t, "tubepulse.yaml", `
environment: staging
grpc_addr: ":6000"
database_dsn: "postgres://db/tubepulse"
access_ttl: 5m
auto_verify_email: true
login_max_attempts: 3
`)

	c, err := Load([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, ":6000", c.GRPCAddr)
	assert.Equal(t, "postgres://db/tubepulse", c.DatabaseDSN)
	assert.Equal(t, 5*time.Minute, c.AccessTTL)
	assert.True(t, c.AutoVerifyEmail)
	assert.Equal(t, 3, c.LoginMaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL)
	assert.Equal(t, ":9090", c.MetricsAddr)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeTempConfig(t, "cfg.json", `{"grpc_addr": ":7000", "reset_ttl": "30m"}`)

	c, err := Load([]string{"-c", path})
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.GRPCAddr)
	assert.Equal(t, 30*time.Minute, c.ResetTTL)
}

func TestLoad_EnvironmentBeatsFile(t *testing.T) {
	path := writeTempConfig(t, "cfg.yaml", "grpc_addr: \":6000\"\nredis_addr: file:6379\n")
	t.Setenv("TUBEPULSE_REDIS_ADDR", "env:6379")
	t.Setenv("TUBEPULSE_REFRESH_TTL", "48h")
	t.Setenv("TUBEPULSE_EXPOSE_TOKENS_IN_LOGS", "true")

	c, err := Load([]string{"-c", path})
	require.NoError(t, err)
	assert.Equal(t, ":6000", c.GRPCAddr)
	assert.Equal(t, "env:6379", c.RedisAddr)
	assert.Equal(t, 48*time.Hour, c.RefreshTTL)
	assert.True(t, c.ExposeTokensInLogs)
}

func TestLoad_FlagsBeatFile(t *testing.T) {
	path := writeTempConfig(t, "cfg.yaml", "grpc_addr: \":6000\"\n")

	c, err := Load([]string{"-c", path, "-a", ":8000", "-t", "2m", "-unrelated", "x"})
	require.NoError(t, err)
	assert.Equal(t, ":8000", c.GRPCAddr)
	assert.Equal(t, 2*time.Minute, c.AccessTTL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = Load([]string{"-t", "not-a-duration"})
	assert.Error(t, err)

	_, err = Load([]string{"-e", "production"})
	assert.ErrorContains(t, err, "development secrets")
}

func TestValidate(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.AccessSecret = ""
	c.AccessTTL = 0
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "access_secret")
	assert.ErrorContains(t, err, "lifetimes")

	c.LoadDefaults()
	c.Environment = EnvironmentProduction
	c.AccessSecret, c.RefreshSecret = "prod-a", "prod-r"
	assert.NoError(t, c.Validate())

	c.AutoVerifyEmail = true
	assert.ErrorContains(t, c.Validate(), "auto_verify_email")
}

func TestLoad_ProductionRejectsAutoVerify(t *testing.T) {
	t.Setenv("TUBEPULSE_ACCESS_SECRET", "prod-a")
	t.Setenv("TUBEPULSE_REFRESH_SECRET", "prod-r")

	c, err := Load([]string{"-e", "production"})
	require.NoError(t, err)
	assert.False(t, c.AutoVerifyEmail)

	t.Setenv("TUBEPULSE_AUTO_VERIFY_EMAIL", "true")
	_, err = Load([]string{"-e", "production"})
	assert.ErrorContains(t, err, "auto_verify_email")
}
