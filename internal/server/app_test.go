package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server/config"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/ratelimit"
	"github.com/tubepulse/accounts/internal/server/repositories/memory"
	"github.com/tubepulse/accounts/internal/server/services"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = ""
	c.GRPCAddr = "127.0.0.1:0"
	c.MetricsAddr = "127.0.0.1:0"
	c.BcryptCost = 4
	return c
}

func TestNewApp_InMemory(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.IsType(t, &memory.Store{}, app.store)
	assert.Nil(t, app.db)
	assert.Nil(t, app.redis)

	res, err := app.service.Register(context.Background(), services.RegisterInput{Email: "a@example.com", Password: "pw-123456"}, models.SessionMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken, "development defaults verify email automatically")
}

func TestNewApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig()
	c.RedisAddr = mr.Addr()

	app, err := NewApp(context.Background(), c, logging.Nop{})
	require.NoError(t, err)
	require.NotNil(t, app.redis)
	require.NoError(t, app.Close())
	assert.Nil(t, app.redis)
}

func TestNewApp_Failures(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"redis unreachable", func(c *config.Config) { c.RedisAddr = addr }},
		{"bad sender", func(c *config.Config) { c.SMTPAddr = "localhost:25"; c.SMTPFrom = "not an address" }},
		{"no secrets", func(c *config.Config) { c.AccessSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.modify(c)
			_, err := NewApp(context.Background(), c, logging.Nop{})
			assert.Error(t, err)
		})
	}
}

func TestInitLimiter(t *testing.T) {
	app := &App{config: testConfig(), logger: logging.Nop{}}

	l, err := app.initLimiter(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, l)

	app.config.LoginMaxAttempts = 0
	l, err = app.initLimiter(context.Background())
	require.NoError(t, err)
	assert.IsType(t, ratelimit.Unlimited{}, l)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Nop{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRun_FailsOnBadAddress(t *testing.T) {
	c := testConfig()
	c.GRPCAddr = "127.0.0.1:99999"
	app, err := NewApp(context.Background(), c, logging.Nop{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not fail")
	}
}
