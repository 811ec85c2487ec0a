package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
	"realtime-service/internal/stories"
)

// CleanerConfig holds the retention windows.
type CleanerConfig struct {
	NotificationRetentionDays int
	DeviceTokenInactiveDays   int
	Interval                  time.Duration
}

// Report counts the rows a cleanup pass removed, or would remove on a dry run.
type Report struct {
	Notifications int64 `json:"notifications"`
	Stories       int64 `json:"stories"`
	DeviceTokens  int64 `json:"device_tokens"`
	DryRun        bool  `json:"dry_run"`
}

// Cleaner purges read notifications past retention, expired stories and
// device tokens that have not been used for a long time.
type Cleaner struct {
	dispatcher *Dispatcher
	tokens     repositories.DeviceTokenRepository
	stories    stories.Store
	cfg        CleanerConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewCleaner builds a Cleaner. stories may be nil when no story store is configured.
func NewCleaner(dispatcher *Dispatcher, tokens repositories.DeviceTokenRepository, store stories.Store, cfg CleanerConfig, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		dispatcher: dispatcher,
		tokens:     tokens,
		stories:    store,
		cfg:        cfg,
		logger:     logger.Named("cleanup"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one cleanup pass. A failing step does not stop the others;
// their errors are joined.
func (c *Cleaner) RunOnce(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
	)
	now := c.now()

	n, err := c.dispatcher.CleanupOld(ctx, c.cfg.NotificationRetentionDays)
	if err != nil {
		errs = append(errs, fmt.Errorf("notifications: %w", err))
	}
	report.Notifications = n
	observability.AddCleanupDeleted("notifications", n)

	if c.stories != nil {
		n, err := c.stories.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("stories: %w", err))
		}
		report.Stories = n
		observability.AddCleanupDeleted("stories", n)
	}

	n, err = c.tokens.PurgeStale(ctx, c.tokenCutoff(now))
	if err != nil {
		errs = append(errs, fmt.Errorf("device tokens: %w", err))
	}
	report.DeviceTokens = n
	observability.AddCleanupDeleted("device_tokens", n)

	c.logger.Info("cleanup finished",
		zap.Int64("notifications", report.Notifications),
		zap.Int64("stories", report.Stories),
		zap.Int64("device_tokens", report.DeviceTokens))
	return report, errors.Join(errs...)
}

// DryRun counts what RunOnce would delete without deleting anything.
func (c *Cleaner) DryRun(ctx context.Context) (Report, error) {
	report := Report{DryRun: true}
	now := c.now()
	var errs []error

	n, err := c.dispatcher.store.CountReadBefore(ctx, now.AddDate(0, 0, -c.cfg.NotificationRetentionDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("notifications: %w", err))
	}
	report.Notifications = n

	if c.stories != nil {
		n, err := c.stories.CountExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("stories: %w", err))
		}
		report.Stories = n
	}

	n, err = c.tokens.CountStale(ctx, c.tokenCutoff(now))
	if err != nil {
		errs = append(errs, fmt.Errorf("device tokens: %w", err))
	}
	report.DeviceTokens = n
	return report, errors.Join(errs...)
}

// Run cleans up immediately and then on every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	interval := c.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("cleanup pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Cleaner) tokenCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.cfg.DeviceTokenInactiveDays)
}
