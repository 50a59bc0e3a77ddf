package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nhle/dabir-notify/internal/model"
)

type notificationRow struct {
	ID         string    `db:"id"`
	Position   int       `db:"position"`
	Message    string    `db:"message"`
	SentAt     time.Time `db:"sent_at"`
	Read       int       `db:"read"`
	Type       string    `db:"notification_type"`
	Priority   string    `db:"priority"`
	ActionURL  string    `db:"action_url"`
	Metadata   string    `db:"metadata"`
	Resolution string    `db:"resolution"`
	FetchedAt  time.Time `db:"fetched_at"`
}

// ReplaceNotifications swaps the cached snapshot for list, keeping the
// server's ordering.
func (s *SQLiteStore) ReplaceNotifications(ctx context.Context, list []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, position, message, sent_at, read,
			notification_type, priority, action_url,
			metadata, resolution, fetched_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, n := range list {
		metadata, err := marshalOptional(n.Metadata, len(n.Metadata) == 0)
		if err != nil {
			return fmt.Errorf("marshaling metadata for notification %s: %w", n.ID, err)
		}
		resolution, err := marshalOptional(n.Resolution, n.Resolution == nil)
		if err != nil {
			return fmt.Errorf("marshaling resolution for notification %s: %w", n.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			n.ID, i, n.Message, n.SentAt.UTC(), boolToInt(n.Read),
			string(model.ParseSeverity(string(n.Type))), n.Priority, n.ActionURL,
			metadata, resolution, now,
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNotifications returns the cached snapshot in server order.
func (s *SQLiteStore) GetNotifications(ctx context.Context) ([]model.Notification, error) {
	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM notifications ORDER BY position"); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	list := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n := model.Notification{
			ID:        r.ID,
			Message:   r.Message,
			SentAt:    r.SentAt,
			Read:      r.Read != 0,
			Type:      model.ParseSeverity(r.Type),
			Priority:  r.Priority,
			ActionURL: r.ActionURL,
		}
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for notification %s: %w", r.ID, err)
			}
		}
		if r.Resolution != "" {
			n.Resolution = &model.ResolutionRef{}
			if err := json.Unmarshal([]byte(r.Resolution), n.Resolution); err != nil {
				return nil, fmt.Errorf("unmarshaling resolution for notification %s: %w", r.ID, err)
			}
		}
		list = append(list, n)
	}
	return list, nil
}

// MarkNotificationRead marks a single cached notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every cached notification as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE read = 0"); err != nil {
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}

func marshalOptional(v any, empty bool) (string, error) {
	if empty {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
