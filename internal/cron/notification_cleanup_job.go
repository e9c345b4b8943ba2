package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/civicconnect/civic-backend/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const notificationRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsCleanupRepo
	Retention  int
}

type notificationsCleanupRepo interface {
	DeactivateReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	DeactivateExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = notificationRetentionDays
	}
	return &notificationCleanupJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

// notificationCleanupJob soft-expires notification records. Read records past
// the retention window and records past their expiry are marked inactive; no
// rows are deleted. The sweeps run independently so one failing does not
// block the other.
type notificationCleanupJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      notificationsCleanupRepo
	retention int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-time.Duration(j.retention) * 24 * time.Hour)

	var readSwept, expiredSwept int64
	var errs error

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeactivateReadBefore(ctx, tx, cutoff)
		readSwept = rows
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("deactivate read notifications: %w", err))
	}

	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeactivateExpired(ctx, tx, now)
		expiredSwept = rows
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("deactivate expired notifications: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"read_swept":     readSwept,
		"expired_swept":  expiredSwept,
	})
	if errs != nil {
		return fmt.Errorf("notification cleanup: %w", errs)
	}
	j.logg.Info(logCtx, "notification cleanup complete")
	return nil
}
