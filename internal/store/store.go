package store

import (
	"context"

	"github.com/nhle/dabir-notify/internal/model"
)

// NotificationCache persists the last fetched notification list so a
// surface has something to show before its first fetch completes. It is
// never treated as server truth.
type NotificationCache interface {
	ReplaceNotifications(ctx context.Context, list []model.Notification) error
	GetNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// ChatArchive keeps the chat transcript of each resolution room.
type ChatArchive interface {
	AppendChatMessage(ctx context.Context, msg model.ChatMessage) error
	GetChatMessages(ctx context.Context, resolutionID string, limit int) ([]model.ChatMessage, error)
}

// Store is the full local cache.
type Store interface {
	NotificationCache
	ChatArchive
	Close() error
}
