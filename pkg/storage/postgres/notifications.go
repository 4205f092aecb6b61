package postgres

import (
	"context"
	"fmt"

	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

func (s *Store) SaveNotification(ctx context.Context, n *models.Notification) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, n.Id, n.UserId, n.Message, n.Link, n.Read, n.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications orders by id: notification ids are UUIDv7 and sort by creation time.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error) {
	query := `SELECT id, user_id, message, link, read, created_at FROM notifications WHERE user_id = $1 ORDER BY id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.Id, &n.UserId, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		utc(&n.CreatedAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if err := affected(res, storage.ErrNotFound); err != nil {
		return fmt.Errorf("notification %s: %w", notificationID, err)
	}
	return nil
}

func (s *Store) AddConnection(ctx context.Context, connectionID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO websocket_connections (connection_id, user_id) VALUES ($1, $2)
		ON CONFLICT (connection_id) DO UPDATE SET user_id = EXCLUDED.user_id`, connectionID, userID); err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}
	return nil
}

func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM websocket_connections WHERE connection_id = $1`, connectionID); err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

func (s *Store) GetConnectionsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT connection_id FROM websocket_connections WHERE user_id = $1 ORDER BY connection_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
