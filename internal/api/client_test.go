package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nhle/dabir-notify/internal/api"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, srv *testutil.FakeServer) *api.Client {
	t.Helper()
	c, err := api.NewClient(api.Config{Origin: srv.Origin(), Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesOrigin(t *testing.T) {
	_, err := api.NewClient(api.Config{Origin: "ftp://dabir.test"})
	assert.Error(t, err)

	_, err = api.NewClient(api.Config{Origin: "http://"})
	assert.Error(t, err)

	c, err := api.NewClient(api.Config{Origin: "https://dabir.test/"})
	require.NoError(t, err)
	assert.Equal(t, "https://dabir.test", c.Origin())
}

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)

	t.Run("Derived From List", func(t *testing.T) {
		srv.SetNotifications(testutil.Notifications(4, 2))
		n, err := c.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Pinned", func(t *testing.T) {
		srv.SetCount(3)
		defer srv.SetCount(-1)
		n, err := c.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("Server Error", func(t *testing.T) {
		srv.Fail(testutil.RouteUnreadCount, http.StatusInternalServerError)
		defer srv.Fail(testutil.RouteUnreadCount, 0)

		_, err := c.UnreadCount(ctx)
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, api.StatusCode(err))
		assert.False(t, api.IsAuthError(err))
	})
}

func TestListNotifications(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)
	srv.SetNotifications(testutil.Notifications(3, 1))

	t.Run("Array", func(t *testing.T) {
		list, err := c.ListNotifications(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "n1", list[0].ID)
		assert.False(t, list[0].Read)
	})

	t.Run("Paginated Envelope", func(t *testing.T) {
		srv.WrapResults(true)
		defer srv.WrapResults(false)

		list, err := c.ListNotifications(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})

	t.Run("Empty", func(t *testing.T) {
		srv.SetNotifications(nil)
		list, err := c.ListNotifications(ctx)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)
	srv.SetNotifications(testutil.Notifications(3, 3))

	require.NoError(t, c.MarkRead(ctx, "n2"))
	assert.True(t, srv.Notifications()[1].Read)
	assert.Equal(t, 1, srv.Hits(testutil.RouteMarkRead))

	err := c.MarkRead(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))

	assert.ErrorIs(t, c.MarkRead(ctx, ""), api.ErrEmptyID)

	require.NoError(t, c.MarkAllRead(ctx))
	assert.Equal(t, 0, model.CountUnread(srv.Notifications()))
}

func TestSessionAndCSRF(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	srv.RequireSession("s3cr3t")
	srv.SetNotifications(testutil.Notifications(2, 2))
	c := newClient(t, srv)

	t.Run("Missing Session Is Auth Error", func(t *testing.T) {
		_, err := c.UnreadCount(ctx)
		require.Error(t, err)
		assert.True(t, api.IsAuthError(err))
		assert.Equal(t, http.StatusUnauthorized, api.StatusCode(err))
	})

	t.Run("Session Cookie Authenticates", func(t *testing.T) {
		c.SetSession(api.Session{SessionID: "s3cr3t", CSRFToken: "tok"})
		n, err := c.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, api.Session{SessionID: "s3cr3t", CSRFToken: "tok"}, c.Session())
	})

	t.Run("Unsafe Methods Carry CSRF Header", func(t *testing.T) {
		require.NoError(t, c.MarkAllRead(ctx))
		assert.Equal(t, "tok", srv.LastHeader(testutil.RouteMarkAllRead, "X-CSRFToken"))
		assert.Equal(t, srv.Origin()+"/", srv.LastHeader(testutil.RouteMarkAllRead, "Referer"))
	})

	t.Run("Safe Methods Do Not", func(t *testing.T) {
		_, err := c.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Empty(t, srv.LastHeader(testutil.RouteUnreadCount, "X-CSRFToken"))
	})

	t.Run("Clear Session", func(t *testing.T) {
		c.ClearSession()
		assert.Equal(t, api.Session{}, c.Session())
		_, err := c.UnreadCount(ctx)
		assert.True(t, api.IsAuthError(err))
	})
}

func TestRateLimitRetry(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	srv.SetCount(5)

	t.Run("Recovers", func(t *testing.T) {
		c := newClient(t, srv)
		srv.Throttle(testutil.RouteUnreadCount, 2)

		n, err := c.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, 3, srv.Hits(testutil.RouteUnreadCount))
	})

	t.Run("Gives Up", func(t *testing.T) {
		c, err := api.NewClient(api.Config{Origin: srv.Origin(), MaxRetries: 1})
		require.NoError(t, err)
		srv.Throttle(testutil.RouteList, 5)

		_, err = c.ListNotifications(ctx)
		require.Error(t, err)
		assert.Equal(t, http.StatusTooManyRequests, api.StatusCode(err))
		assert.Equal(t, 2, srv.Hits(testutil.RouteList))
	})
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)

	settings, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultNotificationSettings(), *settings)

	next := *settings
	next.EmailNotifications = false
	updated, err := c.UpdateSettings(ctx, model.Diff(*settings, next))
	require.NoError(t, err)
	assert.False(t, updated.EmailNotifications)
	assert.True(t, updated.ChatMessages)
	assert.JSONEq(t, `{"email_notifications":false}`, string(srv.LastBody(testutil.RouteSettings)))
	assert.Equal(t, next, srv.Settings())
}

func TestSendTestNotification(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)

	require.NoError(t, c.SendTestNotification(ctx, "hello", model.SeveritySuccess))
	assert.JSONEq(t, `{"message":"hello","type":"success"}`, string(srv.LastBody(testutil.RouteTest)))

	list := srv.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, model.SeveritySuccess, list[0].Type)

	err := c.SendTestNotification(ctx, "", model.SeverityInfo)
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))
}

func TestInteractions(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)
	srv.SetInteractions("r-1", model.InteractionsPage{
		Comments: []model.Interaction{{ID: "c1", Content: "hello", CommentType: "message",
			Author: model.UserRef{Username: "ali", FirstName: "Ali"}}},
		CanChat: true,
	})

	page, err := c.Interactions(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, "Ali", page.Comments[0].Author.DisplayName())
	assert.True(t, page.CanChat)

	_, err = c.Interactions(ctx, "r-404")
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewFakeServer(t)
	c := newClient(t, srv)
	srv.SetUser(model.UserRef{ID: "12", Username: "sara"})

	u, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), u.ID.Int64())
	assert.Equal(t, "sara", u.DisplayName())

	srv.RequireSession("s3cr3t")
	_, err = c.CurrentUser(ctx)
	assert.True(t, api.IsAuthError(err))
}
