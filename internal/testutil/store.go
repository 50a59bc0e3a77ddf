// Package testutil holds shared fixtures: an in-memory cache and a fake
// dabir server speaking both REST and the push channel.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations
// applied, closed when the test completes.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Notifications builds n notification records, newest first, where the
// first unread records are unread and the rest are read.
func Notifications(n, unread int) []model.Notification {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	list := make([]model.Notification, n)
	for i := range list {
		list[i] = model.Notification{
			ID:      fmt.Sprintf("n%d", i+1),
			Message: fmt.Sprintf("notification %d", i+1),
			SentAt:  base.Add(-time.Duration(i) * time.Minute),
			Read:    i >= unread,
			Type:    model.SeverityInfo,
		}
	}
	return list
}

// SeedNotifications writes list into the cache.
func SeedNotifications(t testing.TB, s store.NotificationCache, list []model.Notification) {
	t.Helper()
	require.NoError(t, s.ReplaceNotifications(context.Background(), list))
}
