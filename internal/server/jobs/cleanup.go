// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server/metrics"
	"github.com/tubepulse/accounts/internal/server/repositories/repomanager"
)

const (
	DefaultCleanupSchedule = "@every 1h"
	cleanupTimeout         = time.Minute
)

type CleanupResult struct {
	Sessions int64
	Tokens   int64
}

// Cleanup deletes expired sessions and clears expired verification and
// reset tokens.
type Cleanup struct {
	cron     *cron.Cron
	schedule string
	store    dbx.Transactor
	repos    repomanager.RepositoryManager
	metrics  *metrics.Metrics
	log      logging.Logger
	now      func() time.Time
}

func NewCleanup(store dbx.Transactor, repos repomanager.RepositoryManager, m *metrics.Metrics, log logging.Logger, schedule string) *Cleanup {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &Cleanup{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		store:    store,
		repos:    repos,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func (c *Cleanup) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, c.tick); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", c.schedule, err)
	}
	c.cron.Start()
	c.log.Info(context.Background(), "cleanup scheduled", "schedule", c.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish or ctx to end.
func (c *Cleanup) Stop(ctx context.Context) error {
	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cleanup) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	res, err := c.RunOnce(ctx)
	if err != nil {
		c.log.Error(ctx, "cleanup failed", "error", err)
		return
	}
	c.log.Info(ctx, "cleanup finished", "sessions", res.Sessions, "tokens", res.Tokens)
}

// RunOnce performs a single pass. Sessions and tokens are purged in separate
// statements; a failure in the second keeps the first.
func (c *Cleanup) RunOnce(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	now := c.now()

	err := c.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		n, err := c.repos.Sessions(db).DeleteExpired(ctx, now)
		res.Sessions = n
		return err
	})
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	c.metrics.AddPurged("sessions", res.Sessions)

	err = c.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		n, err := c.repos.Accounts(db).PurgeExpiredTokens(ctx, now)
		res.Tokens = n
		return err
	})
	if err != nil {
		return res, fmt.Errorf("purge tokens: %w", err)
	}
	c.metrics.AddPurged("tokens", res.Tokens)

	return res, nil
}
