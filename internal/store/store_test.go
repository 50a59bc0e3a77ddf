package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/store"
	"github.com/nhle/dabir-notify/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	s := testutil.NewTestStore(t)
	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestMigrationsAreIdempotentOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "cache.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	testutil.SeedNotifications(t, s, testutil.Notifications(2, 1))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	list, err := s.GetNotifications(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestNotificationSnapshot(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	t.Run("Empty", func(t *testing.T) {
		list, err := s.GetNotifications(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Replace Keeps Order And Fields", func(t *testing.T) {
		list := testutil.Notifications(3, 2)
		list[0].Resolution = &model.ResolutionRef{ID: "5", PublicID: "r-5", Clause: "2", Meeting: &model.MeetingRef{Number: 9}}
		list[1].Metadata = map[string]any{"source": "test"}
		list[2].Type = model.SeverityError
		testutil.SeedNotifications(t, s, list)

		got, err := s.GetNotifications(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"n1", "n2", "n3"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.True(t, got[0].SentAt.Equal(list[0].SentAt))
		require.NotNil(t, got[0].Resolution)
		assert.Equal(t, "9/2", got[0].Resolution.Label())
		assert.Equal(t, "test", got[1].Metadata["source"])
		assert.Equal(t, model.SeverityError, got[2].Type)
		assert.Equal(t, 2, model.CountUnread(got))
	})

	t.Run("Replace Drops Previous", func(t *testing.T) {
		testutil.SeedNotifications(t, s, testutil.Notifications(1, 1))
		got, err := s.GetNotifications(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("Mark Read", func(t *testing.T) {
		testutil.SeedNotifications(t, s, testutil.Notifications(3, 3))
		require.NoError(t, s.MarkNotificationRead(ctx, "n2"))

		got, err := s.GetNotifications(ctx)
		require.NoError(t, err)
		assert.False(t, got[0].Read)
		assert.True(t, got[1].Read)

		require.NoError(t, s.MarkAllNotificationsRead(ctx))
		got, err = s.GetNotifications(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, model.CountUnread(got))
	})
}

func TestChatArchive(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendChatMessage(ctx, model.ChatMessage{
			ResolutionID: "r-1",
			Message:      fmt.Sprintf("msg %d", i),
			AuthorID:     "7",
			AuthorName:   "Reza",
		}))
	}
	require.NoError(t, s.AppendChatMessage(ctx, model.ChatMessage{ResolutionID: "r-2", Message: "other room"}))

	t.Run("Full Transcript", func(t *testing.T) {
		msgs, err := s.GetChatMessages(ctx, "r-1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 5)
		assert.Equal(t, "msg 1", msgs[0].Message)
		assert.Equal(t, model.FlexID("7"), msgs[0].AuthorID)
	})

	t.Run("Limit Keeps Most Recent Oldest First", func(t *testing.T) {
		msgs, err := s.GetChatMessages(ctx, "r-1", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "msg 4", msgs[0].Message)
		assert.Equal(t, "msg 5", msgs[1].Message)
	})

	t.Run("Rooms Are Separate", func(t *testing.T) {
		msgs, err := s.GetChatMessages(ctx, "r-2", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "other room", msgs[0].Message)
	})

	t.Run("Requires Room", func(t *testing.T) {
		assert.Error(t, s.AppendChatMessage(ctx, model.ChatMessage{Message: "orphan"}))
	})
}
