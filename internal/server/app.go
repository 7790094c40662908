// Package server wires the account service together: storage, rate limiting,
// notification, the cleanup job, the metrics endpoint and the gRPC server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/config"
	"github.com/tubepulse/accounts/internal/server/jobs"
	"github.com/tubepulse/accounts/internal/server/metrics"
	"github.com/tubepulse/accounts/internal/server/notify"
	"github.com/tubepulse/accounts/internal/server/ratelimit"
	"github.com/tubepulse/accounts/internal/server/repositories/memory"
	"github.com/tubepulse/accounts/internal/server/repositories/repomanager"
	"github.com/tubepulse/accounts/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/tubepulse/accounts/internal/server/grpc"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db    *sql.DB
	redis redis.UniversalClient

	store   dbx.Transactor
	repos   repomanager.RepositoryManager
	service *services.AccountService
	issuer  *auth.Issuer
	cleanup *jobs.Cleanup
}

// NewApp builds every process-wide resource once. An empty DatabaseDSN keeps
// all data in memory; an empty RedisAddr keeps login throttling in memory.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(c.Environment)
	}
	app := &App{config: c, logger: logger}

	app.registry = metrics.NewRegistry()
	app.metrics = metrics.New(app.registry)

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := app.initStorage(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	limiter, err := app.initLimiter(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	notifier, err := app.initNotifier()
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.issuer, err = auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  []byte(c.AccessSecret),
		RefreshSecret: []byte(c.RefreshSecret),
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		Issuer:        c.TokenIssuer,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	app.service = services.NewAccountService(services.Deps{
		Store:    app.store,
		Repos:    app.repos,
		Hasher:   auth.NewHasher(c.BcryptCost, c.HashWorkers),
		Issuer:   app.issuer,
		Notifier: notifier,
		Limiter:  limiter,
		Metrics:  app.metrics,
		Log:      logger.With("module", "accounts"),
	}, services.Policy{
		AutoVerifyEmail:    c.AutoVerifyEmail,
		ExposeTokensInLogs: c.ExposeTokensInLogs,
		VerificationTTL:    c.VerificationTTL,
		ResetTTL:           c.ResetTTL,
	})

	app.cleanup = jobs.NewCleanup(app.store, app.repos, app.metrics, logger.With("module", "cleanup"), c.CleanupSchedule)

	return app, nil
}

func (app *App) initStorage(ctx context.Context) error {
	c := app.config
	if c.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, using in-memory storage")
		m := memory.New()
		app.store, app.repos = m, m
		return nil
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	db.SetMaxOpenConns(c.DBMaxOpenConns)
	db.SetMaxIdleConns(c.DBMaxIdleConns)
	db.SetConnMaxLifetime(c.DBConnMaxLifetime)
	app.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	retrier := dbx.NewRetrier(c.RetryMaxAttempts, c.RetryBaseDelay)
	retrier.OnRetry = func(ctx context.Context, attempt int, delay time.Duration, err error) {
		app.metrics.StorageRetry()
		app.logger.Warn(ctx, "retrying storage operation", "attempt", attempt, "delay", delay, "error", err)
	}
	app.store = dbx.NewStore(db, retrier, dbx.TxConfig{
		Isolation: sql.LevelSerializable,
		MaxWait:   c.TxMaxWait,
		Timeout:   c.TxTimeout,
	})

	app.repos = repomanager.NewPostgresRepositoryManager()
	if err := app.repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func (app *App) initLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	c := app.config
	if c.LoginMaxAttempts <= 0 {
		return ratelimit.Unlimited{}, nil
	}
	if c.RedisAddr == "" {
		return ratelimit.NewMemory(c.LoginMaxAttempts, c.LoginWindow), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	app.redis = client
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return ratelimit.NewRedisLimiter(client, c.LoginMaxAttempts, c.LoginWindow, ""), nil
}

func (app *App) initNotifier() (notify.Notifier, error) {
	c := app.config
	if c.SMTPAddr == "" {
		return notify.NewLogNotifier(app.logger.With("module", "notify"), c.ExposeTokensInLogs), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Addr:     c.SMTPAddr,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		BaseURL:  c.AppBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp notifier: %w", err)
	}
	return n, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Received signal, shutting down", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) runMetricsServer(ctx context.Context) error {
	if app.config.MetricsAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           metrics.Handler(app.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (app *App) runCleanup(ctx context.Context) error {
	if err := app.cleanup.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.cleanup.Stop(stopCtx)
}

// Run serves until ctx is cancelled, a termination signal arrives or one of
// the servers fails; then it stops the others and releases resources.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)
	app.initSignalHandler(ctx, cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.service, app.issuer).Run(ctx)
	})
	g.Go(func() error { return app.runMetricsServer(ctx) })
	g.Go(func() error { return app.runCleanup(ctx) })

	err := g.Wait()

	if cerr := app.Close(); cerr != nil {
		app.logger.Error(context.Background(), "close resources", "error", cerr)
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}

// Close releases the database pool and the Redis client.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
		app.redis = nil
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
		app.db = nil
	}
	return errors.Join(errs...)
}
