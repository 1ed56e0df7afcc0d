package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
)

// Repository persists inbox rows. Every read or write is scoped to one Recipient.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, recipient Recipient) (int64, error)
	MarkRead(ctx context.Context, recipient Recipient, notificationID uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipient Recipient, at time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type listQuery struct {
	Recipient  Recipient
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) inbox(ctx context.Context, recipient Recipient) *gorm.DB {
	return recipient.scope(r.db.WithContext(ctx).Model(&models.Notification{}))
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormRepository) List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error) {
	query := r.inbox(ctx, q.Recipient)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := pagination.Seek(query, q.Cursor, q.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, q.Limit, func(n models.Notification) (time.Time, uuid.UUID) {
		return n.CreatedAt, n.ID
	})
	return page, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, recipient Recipient) (int64, error) {
	var n int64
	err := r.inbox(ctx, recipient).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead reports whether the notification exists in the inbox. Re-reading keeps the first read_at.
func (r *gormRepository) MarkRead(ctx context.Context, recipient Recipient, notificationID uuid.UUID, at time.Time) (bool, error) {
	var row models.Notification
	err := r.inbox(ctx, recipient).Select("id", "read_at").Where("id = ?", notificationID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, err
	case row.ReadAt != nil:
		return true, nil
	}
	err = r.inbox(ctx, recipient).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", at).Error
	return err == nil, err
}

func (r *gormRepository) MarkAllRead(ctx context.Context, recipient Recipient, at time.Time) (int64, error) {
	res := r.inbox(ctx, recipient).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteOlderThan purges notifications created before cutoff, inside tx when given.
func (r *gormRepository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
