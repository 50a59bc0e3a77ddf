package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/dabir-notify/internal/model"
)

type chatRow struct {
	ID           int64     `db:"id"`
	ResolutionID string    `db:"resolution_id"`
	Message      string    `db:"message"`
	AuthorID     string    `db:"author_id"`
	AuthorName   string    `db:"author_name"`
	SentAt       string    `db:"sent_at"`
	ReceivedAt   time.Time `db:"received_at"`
}

// AppendChatMessage archives one received chat message.
func (s *SQLiteStore) AppendChatMessage(ctx context.Context, msg model.ChatMessage) error {
	if msg.ResolutionID == "" {
		return fmt.Errorf("chat message has no resolution id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (resolution_id, message, author_id, author_name, sent_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ResolutionID, msg.Message, string(msg.AuthorID), msg.AuthorName,
		msg.Timestamp, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archiving chat message for %s: %w", msg.ResolutionID, err)
	}
	return nil
}

// GetChatMessages returns up to limit of the most recent messages of a
// room, oldest first. A non-positive limit returns the whole transcript.
func (s *SQLiteStore) GetChatMessages(
	ctx context.Context,
	resolutionID string,
	limit int,
) ([]model.ChatMessage, error) {
	query := `
		SELECT * FROM (
			SELECT * FROM chat_messages WHERE resolution_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}

	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, query, resolutionID, limit); err != nil {
		return nil, fmt.Errorf("querying chat messages for %s: %w", resolutionID, err)
	}

	msgs := make([]model.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, model.ChatMessage{
			ResolutionID: r.ResolutionID,
			Message:      r.Message,
			AuthorID:     model.FlexID(r.AuthorID),
			AuthorName:   r.AuthorName,
			Timestamp:    r.SentAt,
		})
	}
	return msgs, nil
}
