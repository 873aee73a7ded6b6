package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/adilzhm/notification-pipeline/internal/model"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotPending           = errors.New("notification is not pending")
)

const selectColumns = `id, user_id, channel, message, metadata, status, retry_count, next_retry, created_at, updated_at`

// Repository provides access to the notifications table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new notification and returns it with its assigned
// identity and timestamps.
func (r *Repository) Create(ctx context.Context, n model.Notification) (model.Notification, error) {
	query := `
		INSERT INTO notifications (
		    user_id, channel, message, metadata, status, retry_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at;
    `

	err := r.db.Master.QueryRowContext(
		ctx, query, n.UserID, n.Channel, n.Message, n.Metadata, n.Status, n.RetryCount,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("failed to create notification: %w", err)
	}

	return n, nil
}

// GetByID retrieves a notification by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM notifications
		WHERE id = $1;
    `

	n, err := scanNotification(r.db.Master.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, ErrNotificationNotFound
		}

		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ClaimProcessing moves a pending notification to processing. It returns
// ErrNotPending when the notification is missing or already claimed, which
// lets concurrent consumers of the same job resolve to a single winner.
func (r *Repository) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3;
    `

	res, err := r.db.ExecContext(ctx, query, model.StatusProcessing, id, model.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim notification: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrNotPending
	}

	return nil
}

// MarkDelivered transitions a notification to its terminal delivered state.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = $1, next_retry = NULL, updated_at = now()
		WHERE id = $2;
    `

	res, err := r.db.ExecContext(ctx, query, model.StatusDelivered, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// UpdateDeliveryState records the outcome of a failed delivery attempt:
// the new status, the attempt count, the next retry time (nil for terminal
// failures) and the error message kept in metadata.
func (r *Repository) UpdateDeliveryState(
	ctx context.Context,
	id uuid.UUID,
	status model.Status,
	retryCount int,
	nextRetry *time.Time,
	lastError string,
) error {
	query := `
		UPDATE notifications
		SET status = $1,
		    retry_count = $2,
		    next_retry = $3,
		    metadata = metadata || jsonb_build_object('lastError', $4::text),
		    updated_at = now()
		WHERE id = $5;
    `

	res, err := r.db.ExecContext(ctx, query, status, retryCount, nextRetry, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to update notification delivery state: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// ListInAppByUser retrieves a page of in-app notifications for a user,
// most recent first.
func (r *Repository) ListInAppByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM notifications
		WHERE user_id = $1 AND channel = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4;
    `

	rows, err := r.db.QueryContext(ctx, query, userID, model.ChannelInApp, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// CountInAppByUser returns the total number of in-app notifications for a user.
func (r *Repository) CountInAppByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND channel = $2;
    `

	var total int
	if err := r.db.Master.QueryRowContext(ctx, query, userID, model.ChannelInApp).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	return total, nil
}

// ListAwaitingRedelivery retrieves pending notifications whose retry is due,
// plus pending notifications that never got a queue job (no next_retry and
// untouched since staleBefore). The latter reclaims records orphaned by an
// enqueue failure after creation.
func (r *Repository) ListAwaitingRedelivery(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.Notification, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM notifications
		WHERE status = $1
		  AND (next_retry <= $2 OR (next_retry IS NULL AND updated_at < $3))
		ORDER BY updated_at
		LIMIT $4;
    `

	rows, err := r.db.QueryContext(ctx, query, model.StatusPending, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications awaiting redelivery: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// ReleaseStaleProcessing returns notifications stuck in processing since
// before the given time to pending, so they become visible to the
// redelivery sweep again. Covers workers that crashed mid-delivery.
func (r *Repository) ReleaseStaleProcessing(ctx context.Context, staleBefore time.Time) (int, error) {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3;
    `

	res, err := r.db.ExecContext(ctx, query, model.StatusPending, model.StatusProcessing, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale notifications: %w", err)
	}

	rows, _ := res.RowsAffected()

	return int(rows), nil
}

// TouchRequeued clears next_retry and bumps updated_at after a job has been
// republished, so the same record is not swept again on the next tick.
func (r *Repository) TouchRequeued(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET next_retry = NULL, updated_at = now()
		WHERE id = $1 AND status = $2;
    `

	if _, err := r.db.ExecContext(ctx, query, id, model.StatusPending); err != nil {
		return fmt.Errorf("failed to touch requeued notification: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (model.Notification, error) {
	var (
		n         model.Notification
		nextRetry sql.NullTime
	)

	err := row.Scan(
		&n.ID, &n.UserID, &n.Channel, &n.Message, &n.Metadata,
		&n.Status, &n.RetryCount, &nextRetry, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return model.Notification{}, err
	}

	if nextRetry.Valid {
		n.NextRetry = &nextRetry.Time
	}

	return n, nil
}
