package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, data, read_at, created_at`

// NotificationRepository persists in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateMany inserts notifications in a single transaction.
func (r *NotificationRepository) CreateMany(ctx context.Context, items []models.Notification) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return inTx(ctx, r.db, "create notifications", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO notifications (id, user_id, type, title, message, data, created_at) VALUES (:id, :user_id, :type, :title, :message, COALESCE(:data, CAST('{}' AS jsonb)), :created_at)`
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
			items[i].CreatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, &items[i]); err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
		}
		return nil
	})
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := "FROM notifications WHERE user_id = $1"
	if filter.UnreadOnly {
		base += " AND read_at IS NULL"
	}
	limit, offset := paging(filter.Page, filter.PageSize)

	var items []models.Notification
	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, base, limit, offset)
	if err := r.db.SelectContext(ctx, &items, query, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead marks one notification owned by userID as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead marks every unread notification of userID as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = $2 WHERE user_id = $1 AND read_at IS NULL`, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountUnread returns the number of unread notifications for userID.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return total, nil
}
