package notifications

import (
	"context"
	"time"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const insertBatchSize = 200

// Repository exposes persistence helpers for notification records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, records []models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error)
	Stats(ctx context.Context, recipientID uuid.UUID) (*Stats, error)
	AdminList(ctx context.Context, filter AdminListFilter) ([]models.Notification, int64, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, channel Channel, at time.Time, deliveryErr error) error
	DeactivateReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	DeactivateExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      *pagination.Cursor
	UnreadOnly  bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

type kindCount struct {
	Kind  enums.NotificationKind
	Count int64
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateBatch(ctx context.Context, records []models.Notification) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if records[i].ID == uuid.Nil {
			records[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).CreateInBatches(&records, insertBatchSize).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND active = ?", params.RecipientID, true)
	if params.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if params.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID,
		)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(normalized + 1).Find(&notifications).Error; err != nil {
		return nil, nil, err
	}

	if len(notifications) > normalized {
		last := notifications[normalized-1]
		notifications = notifications[:normalized]
		return notifications, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return notifications, nil, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", notificationID, recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": now, "updated_at": now})
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND active = ?", recipientID, false, true).
		Updates(map[string]any{"is_read": true, "read_at": now, "updated_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, recipientID uuid.UUID) (*Stats, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("recipient_id = ? AND active = ?", recipientID, true)
	}

	stats := &Stats{ByKind: map[enums.NotificationKind]int64{}}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_read = ?", false).Count(&stats.Unread).Error; err != nil {
		return nil, err
	}

	var rows []kindCount
	if err := base().Select("kind, COUNT(*) AS count").Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByKind[row.Kind] = row.Count
	}
	return stats, nil
}

func (r *repositoryImpl) AdminList(ctx context.Context, filter AdminListFilter) ([]models.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{})
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.RecipientID != nil {
		query = query.Where("recipient_id = ?", *filter.RecipientID)
	}
	if filter.FailedOnly {
		query = query.Where("realtime_error IS NOT NULL OR email_error IS NOT NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Notification
	err := query.Order("created_at DESC, id DESC").
		Limit(filter.window().Limit).
		Offset(filter.window().Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// RecordDelivery stores the outcome of one channel attempt. Channels are
// written independently so neither overwrites the other.
func (r *repositoryImpl) RecordDelivery(ctx context.Context, id uuid.UUID, channel Channel, at time.Time, deliveryErr error) error {
	var errMsg *string
	if deliveryErr != nil {
		msg := truncate(deliveryErr.Error(), maxDeliveryErrorLength)
		errMsg = &msg
	}

	cols := map[string]any{}
	switch channel {
	case ChannelRealtime:
		cols["realtime_attempted"] = true
		cols["realtime_attempted_at"] = at
		cols["realtime_error"] = errMsg
	case ChannelEmail:
		cols["email_attempted"] = true
		cols["email_attempted_at"] = at
		cols["email_error"] = errMsg
	default:
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		UpdateColumns(cols).Error
}

func (r *repositoryImpl) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// DeactivateReadBefore soft-expires read records created before cutoff.
func (r *repositoryImpl) DeactivateReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	result := r.conn(ctx, tx).
		Model(&models.Notification{}).
		Where("active = ? AND is_read = ? AND created_at < ?", true, true, cutoff).
		UpdateColumns(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	return result.RowsAffected, result.Error
}

// DeactivateExpired soft-expires records whose expires_at has passed.
func (r *repositoryImpl) DeactivateExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := r.conn(ctx, tx).
		Model(&models.Notification{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		UpdateColumns(map[string]any{"active": false, "updated_at": now})
	return result.RowsAffected, result.Error
}
