package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/nhle/dabir-notify/internal/model"
)

// ErrEmptyID is returned for operations that need a notification id.
var ErrEmptyID = errors.New("notification id is empty")

// UnreadCount returns the server's authoritative unread notification count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.Get(ctx, "/notifications/unread-count/", &resp); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	if resp.Count < 0 {
		return 0, fmt.Errorf("fetching unread count: negative count %d", resp.Count)
	}
	return resp.Count, nil
}

// ListNotifications returns the current user's notifications. The server
// answers either with a bare array or with a paginated {"results": [...]}
// envelope.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/notifications/user/", &raw); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	list, err := decodeNotificationList(raw)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

func decodeNotificationList(raw json.RawMessage) ([]model.Notification, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []model.Notification{}, nil
	}

	if raw[0] == '[' {
		var list []model.Notification
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decoding notification array: %w", err)
		}
		return list, nil
	}

	var page struct {
		Results []model.Notification `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decoding notification page: %w", err)
	}
	if page.Results == nil {
		page.Results = []model.Notification{}
	}
	return page.Results, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	path := "/notifications/" + url.PathEscape(id) + "/read/"
	if err := c.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.Put(ctx, "/notifications/mark-all-read/", nil, nil); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// Settings returns the user's notification preferences.
func (c *Client) Settings(ctx context.Context) (*model.NotificationSettings, error) {
	settings := model.DefaultNotificationSettings()
	if err := c.Get(ctx, "/notifications/settings/", &settings); err != nil {
		return nil, fmt.Errorf("fetching notification settings: %w", err)
	}
	return &settings, nil
}

// UpdateSettings sends a partial settings change and returns the stored
// result.
func (c *Client) UpdateSettings(
	ctx context.Context,
	update model.SettingsUpdate,
) (*model.NotificationSettings, error) {
	var settings model.NotificationSettings
	if err := c.Put(ctx, "/notifications/settings/", update, &settings); err != nil {
		return nil, fmt.Errorf("updating notification settings: %w", err)
	}
	return &settings, nil
}

// SendTestNotification asks the server to create a notification for the
// current user, which then arrives over the push channel.
func (c *Client) SendTestNotification(
	ctx context.Context,
	message string,
	severity model.Severity,
) error {
	body := struct {
		Message string         `json:"message"`
		Type    model.Severity `json:"type"`
	}{Message: message, Type: severity}
	if err := c.Post(ctx, "/notifications/test/", body, nil); err != nil {
		return fmt.Errorf("sending test notification: %w", err)
	}
	return nil
}

// Interactions returns the comments and actions of a resolution.
func (c *Client) Interactions(ctx context.Context, publicID string) (*model.InteractionsPage, error) {
	if publicID == "" {
		return nil, errors.New("resolution id is empty")
	}
	var page model.InteractionsPage
	path := "/resolutions/" + url.PathEscape(publicID) + "/interactions/"
	if err := c.Get(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("fetching interactions for %s: %w", publicID, err)
	}
	return &page, nil
}

// CurrentUser returns the user owning the session.
func (c *Client) CurrentUser(ctx context.Context) (*model.UserRef, error) {
	var u model.UserRef
	if err := c.Get(ctx, "/user-info/", &u); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &u, nil
}
