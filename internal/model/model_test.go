package model_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePushEvent(t *testing.T) {
	t.Run("Notification", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"notification","message":"Test","notification_id":"abc123"}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Notification)
		assert.Equal(t, model.KindNotification, ev.Kind)
		assert.Equal(t, "Test", ev.Notification.Message)
		assert.Equal(t, "abc123", ev.Notification.NotificationID)
		assert.Equal(t, model.SeverityInfo, ev.Notification.Severity())
		assert.Nil(t, ev.Notification.ResolutionRef())
	})

	t.Run("Notification With Resolution Object", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"notification","message":"m","notification_id":"1",
			"notification_type":"warning","resolution":{"id":7,"public_id":"r-7","clause":"3","subclause":"1","meeting":{"number":12}}}`))
		require.NoError(t, err)
		ref := ev.Notification.ResolutionRef()
		require.NotNil(t, ref)
		assert.Equal(t, model.FlexID("7"), ref.ID)
		assert.Equal(t, int64(7), ref.ID.Int64())
		assert.Equal(t, "12/3-1", ref.Label())
		assert.Equal(t, model.SeverityWarning, ev.Notification.Severity())
	})

	t.Run("Notification With Resolution String", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"notification","message":"m","notification_id":"1","resolution":"r-9"}`))
		require.NoError(t, err)
		ref := ev.Notification.ResolutionRef()
		require.NotNil(t, ref)
		assert.Equal(t, model.FlexID("r-9"), ref.ID)
	})

	t.Run("Chat Message", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"chat_message","resolution_id":"r-1","message":"hi","author_id":4,"author_name":"Sara"}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Chat)
		assert.Equal(t, "r-1", ev.Chat.ResolutionID)
		assert.Equal(t, model.FlexID("4"), ev.Chat.AuthorID)
	})

	t.Run("Interaction", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"interaction_notification","resolution_id":"r-1","interaction_data":{"id":"x"}}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Interaction)
		assert.JSONEq(t, `{"id":"x"}`, string(ev.Interaction.InteractionData))
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		ev, err := model.DecodePushEvent([]byte(`{"type":"presence"}`))
		require.NoError(t, err)
		assert.False(t, ev.Known())
		assert.Equal(t, model.EventKind("presence"), ev.Kind)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := model.DecodePushEvent([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("Missing Type", func(t *testing.T) {
		_, err := model.DecodePushEvent([]byte(`{"message":"x"}`))
		assert.ErrorIs(t, err, model.ErrMissingKind)
	})
}

func TestOutboundEventEncoding(t *testing.T) {
	data, err := json.Marshal(model.OutboundEvent{Type: model.KindJoinChat, ResolutionID: "r-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_chat","resolution_id":"r-1"}`, string(data))
}

func TestNotificationDecoding(t *testing.T) {
	raw := `[{"id":"n1","message":"a","sent_at":"2026-01-02T03:04:05Z","read":false,"notification_type":"error"},
		{"id":"n2","message":"b","sent_at":"2026-01-02T03:04:06Z","read":true}]`
	var list []model.Notification
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	require.Len(t, list, 2)
	assert.Equal(t, model.SeverityError, list[0].Type)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), list[0].SentAt)
	assert.Equal(t, 1, model.CountUnread(list))
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, model.SeveritySuccess, model.ParseSeverity("success"))
	assert.Equal(t, model.SeverityInfo, model.ParseSeverity(""))
	assert.Equal(t, model.SeverityInfo, model.ParseSeverity("critical"))
}

func TestSettingsDiffAndApply(t *testing.T) {
	from := model.DefaultNotificationSettings()
	to := from
	to.MobileNotifications = true
	to.ChatMessages = false

	u := model.Diff(from, to)
	require.False(t, u.IsEmpty())
	assert.Nil(t, u.EmailNotifications)
	require.NotNil(t, u.MobileNotifications)
	assert.True(t, *u.MobileNotifications)
	assert.Equal(t, to, u.Apply(from))

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mobile_notifications":true,"chat_messages":false}`, string(data))

	assert.True(t, model.Diff(from, from).IsEmpty())
}

func TestConnStateString(t *testing.T) {
	var s model.ConnState
	assert.Equal(t, "closed-normal", s.String())
	assert.Equal(t, "closed-abnormal", model.ConnClosedAbnormal.String())
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing File Returns Defaults", func(t *testing.T) {
		cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
		assert.Equal(t, 5*time.Second, cfg.ToastVisible())
		assert.Equal(t, 300*time.Millisecond, cfg.ToastExit())
		assert.Equal(t, "/api", cfg.Server.APIPrefix)
		assert.Equal(t, 100, cfg.Push.EventLogCap)
	})

	t.Run("File Overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  origin: https://dabir.test\npush:\n  reconnect_delay_ms: 250\n"), 0o600))

		cfg, err := model.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "https://dabir.test", cfg.Server.Origin)
		assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay())
		assert.Equal(t, 300*time.Millisecond, cfg.ToastExit())
	})

	t.Run("Rejects Zero Delay", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("push:\n  reconnect_delay_ms: 0\n"), 0o600))

		_, err := model.LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("Save Round Trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")
		cfg := model.DefaultAppConfig()
		cfg.Desktop.Enabled = true
		cfg.Toast.VisibleMs = 1200
		require.NoError(t, model.SaveConfig(path, cfg))

		loaded, err := model.LoadConfig(path)
		require.NoError(t, err)
		assert.True(t, loaded.Desktop.Enabled)
		assert.Equal(t, 1200, loaded.Toast.VisibleMs)
	})
}
