package push_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/api"
	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/push"
	"github.com/nhle/dabir-notify/internal/testutil"
)

const (
	delay   = 5 * time.Second
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeClock is the part of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type fixture struct {
	srv    *testutil.FakeServer
	clock  fakeClock
	bus    *eventbus.Bus
	client *push.Client
}

func newFixture(t *testing.T, mutate ...func(*push.Options)) *fixture {
	t.Helper()
	f := &fixture{
		srv:   testutil.NewFakeServer(t),
		clock: clockwork.NewFakeClock(),
		bus:   eventbus.New(),
	}
	opts := push.Options{
		Origin:         f.srv.Origin(),
		ReconnectDelay: delay,
		Bus:            f.bus,
		Clock:          f.clock,
	}
	for _, m := range mutate {
		m(&opts)
	}
	client, err := push.NewClient(opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	f.client = client
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.client.Connect(context.Background())
	require.Equal(t, model.ConnOpen, f.client.State())
	f.srv.WaitForConns(1)
}

func (f *fixture) waitState(t *testing.T, want model.ConnState) {
	t.Helper()
	require.Eventually(t, func() bool { return f.client.State() == want }, waitFor, tick,
		"waiting for state %s, have %s", want, f.client.State())
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/notifications/"},
		{"https://dabir.example.org", "wss://dabir.example.org/ws/notifications/"},
		{"https://dabir.example.org/dashboard?x=1", "wss://dabir.example.org/ws/notifications/"},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			got, err := push.EndpointURL(tc.origin, push.DefaultPath)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := push.EndpointURL("ftp://dabir.example.org", push.DefaultPath)
	assert.Error(t, err)
	_, err = push.EndpointURL("https://", push.DefaultPath)
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, model.ConnClosedNormal, f.client.State())
	assert.False(t, f.client.IsConnected())

	var states []model.ConnState
	var mu sync.Mutex
	f.client.OnStateChange(func(s model.ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	f.connect(t)
	assert.True(t, f.client.IsConnected())
	assert.Equal(t, f.srv.Origin(), f.srv.LastHeader(testutil.RoutePush, "Origin"))

	// A second connect reuses the open connection.
	f.client.Connect(context.Background())
	assert.Equal(t, 1, f.srv.Dials())
	assert.Equal(t, 1, f.client.DialCount())

	mu.Lock()
	assert.Equal(t, []model.ConnState{model.ConnConnecting, model.ConnOpen}, states)
	mu.Unlock()
}

func TestConnectPresentsSessionCookie(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.RequireSession("abc")
	rest, err := api.NewClient(api.Config{Origin: srv.Origin()})
	require.NoError(t, err)
	rest.SetSession(api.Session{SessionID: "abc"})

	client, err := push.NewClient(push.Options{Origin: srv.Origin(), Jar: rest.Jar(), Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)
	defer client.Close()

	client.Connect(context.Background())
	assert.Equal(t, model.ConnOpen, client.State())
}

func TestNotificationEvent(t *testing.T) {
	f := newFixture(t)

	const subscribers = 4
	var mu sync.Mutex
	calls := make([]int, subscribers)
	var details []model.NotificationEvent
	for i := 0; i < subscribers; i++ {
		i := i
		f.bus.Subscribe(eventbus.RefreshNotificationCount, func(d any) {
			mu.Lock()
			defer mu.Unlock()
			calls[i]++
			if i == 0 {
				details = append(details, d.(model.NotificationEvent))
			}
		})
	}
	events := make(chan model.PushEvent, 1)
	f.client.OnEvent(func(ev model.PushEvent) { events <- ev })

	f.connect(t)
	f.srv.PushText(`{"type":"notification","message":"Test","notification_id":"abc123"}`)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Notification)
		assert.Equal(t, "Test", ev.Notification.Message)
	case <-time.After(waitFor):
		t.Fatal("no event delivered")
	}

	mu.Lock()
	for i, n := range calls {
		assert.Equal(t, 1, n, "subscriber %d", i)
	}
	require.Len(t, details, 1)
	assert.Equal(t, "abc123", details[0].NotificationID)
	mu.Unlock()

	logged := f.client.DrainNotifications()
	require.Len(t, logged, 1)
	assert.Equal(t, "abc123", logged[0].NotificationID)
	assert.Empty(t, f.client.DrainNotifications())
}

func TestChatAndInteractionEvents(t *testing.T) {
	f := newFixture(t)

	chats := make(chan model.ChatMessage, 1)
	interactions := make(chan model.InteractionEvent, 1)
	f.bus.Subscribe(eventbus.RefreshChatMessages, func(d any) { chats <- d.(model.ChatMessage) })
	f.bus.Subscribe(eventbus.RefreshInteractionNotifications, func(d any) { interactions <- d.(model.InteractionEvent) })

	f.connect(t)
	f.srv.PushText(`{"type":"chat_message","resolution_id":"r-1","message":"salam","author_id":3}`)
	f.srv.PushText(`{"type":"interaction_notification","resolution_id":"r-1","interaction_data":{"id":"c9"}}`)

	select {
	case msg := <-chats:
		assert.Equal(t, "salam", msg.Message)
	case <-time.After(waitFor):
		t.Fatal("no chat broadcast")
	}
	select {
	case ev := <-interactions:
		assert.Equal(t, "r-1", ev.ResolutionID)
	case <-time.After(waitFor):
		t.Fatal("no interaction broadcast")
	}

	chatLog := f.client.DrainChatMessages()
	require.Len(t, chatLog, 1)
	assert.Equal(t, "r-1", chatLog[0].ResolutionID)
	assert.Empty(t, f.client.DrainNotifications(), "interaction events are not retained")
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := newFixture(t)
	published := 0
	var mu sync.Mutex
	count := func(any) {
		mu.Lock()
		published++
		mu.Unlock()
	}
	f.bus.Subscribe(eventbus.RefreshNotificationCount, count)
	f.bus.Subscribe(eventbus.RefreshChatMessages, count)
	f.bus.Subscribe(eventbus.RefreshInteractionNotifications, count)

	f.connect(t)
	f.srv.PushText("this is not json")
	f.srv.PushText(`{"message":"typeless"}`)
	f.srv.PushText(`{"type":"presence","user":1}`)
	f.srv.PushText(`{"type":"notification","message":"after","notification_id":"n2"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return published == 1
	}, waitFor, tick)

	assert.Equal(t, model.ConnOpen, f.client.State())
	assert.False(t, f.client.ReconnectPending())
	logged := f.client.DrainNotifications()
	require.Len(t, logged, 1)
	assert.Equal(t, "after", logged[0].Message)
}

func TestReconnectAfterAbnormalClose(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	for round := 1; round <= 3; round++ {
		if round%2 == 0 {
			f.srv.ClosePush(websocket.CloseGoingAway)
		} else {
			f.srv.DropPush()
		}
		f.waitState(t, model.ConnClosedAbnormal)
		require.True(t, f.client.ReconnectPending())
		dials := f.srv.Dials()

		f.clock.Advance(delay - time.Millisecond)
		assert.Never(t, func() bool { return f.srv.Dials() > dials }, 100*time.Millisecond, tick,
			"round %d redialed early", round)

		f.clock.Advance(time.Millisecond)
		f.waitState(t, model.ConnOpen)
		assert.Equal(t, dials+1, f.srv.Dials(), "round %d", round)
		f.srv.WaitForConns(1)
	}
}

func TestRetryDialFailuresIndefinitely(t *testing.T) {
	f := newFixture(t)
	f.srv.RejectPush(true)

	f.client.Connect(context.Background())
	assert.Equal(t, model.ConnClosedAbnormal, f.client.State())

	for attempt := 2; attempt <= 5; attempt++ {
		f.clock.Advance(delay)
		require.Eventually(t, func() bool { return f.srv.Dials() == attempt }, waitFor, tick)
		f.waitState(t, model.ConnClosedAbnormal)
	}

	f.srv.RejectPush(false)
	f.clock.Advance(delay)
	f.waitState(t, model.ConnOpen)
	assert.Equal(t, 6, f.client.DialCount())
}

func TestServerNormalCloseSuppressesReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.srv.ClosePush(websocket.CloseNormalClosure)
	f.waitState(t, model.ConnClosedNormal)
	assert.False(t, f.client.ReconnectPending())

	f.clock.Advance(3 * delay)
	assert.Never(t, func() bool { return f.srv.Dials() > 1 }, 100*time.Millisecond, tick)
}

func TestTeardownClosesNormally(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	require.NoError(t, f.client.Close())
	assert.Equal(t, model.ConnClosedNormal, f.client.State())

	require.Eventually(t, func() bool { return len(f.srv.CloseCodes()) == 1 }, waitFor, tick)
	assert.Equal(t, []int{websocket.CloseNormalClosure}, f.srv.CloseCodes())

	f.clock.Advance(2 * delay)
	assert.Never(t, func() bool { return f.srv.Dials() > 1 }, 100*time.Millisecond, tick)

	require.NoError(t, f.client.Close())
	f.client.Connect(context.Background())
	assert.Equal(t, 1, f.srv.Dials(), "connect after teardown is a no-op")
}

func TestDisconnect(t *testing.T) {
	t.Run("Closes Normally And Stays Usable", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t)

		require.NoError(t, f.client.Disconnect())
		assert.Equal(t, model.ConnClosedNormal, f.client.State())
		f.srv.WaitForConns(0)
		assert.Equal(t, []int{websocket.CloseNormalClosure}, f.srv.CloseCodes())

		f.clock.Advance(2 * delay)
		assert.Never(t, func() bool { return f.srv.Dials() > 1 }, 100*time.Millisecond, tick)

		f.connect(t)
		assert.Equal(t, 2, f.srv.Dials())
	})

	t.Run("Cancels Pending Reconnect", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t)
		f.srv.DropPush()
		f.waitState(t, model.ConnClosedAbnormal)
		require.True(t, f.client.ReconnectPending())

		require.NoError(t, f.client.Disconnect())
		assert.False(t, f.client.ReconnectPending())
		f.clock.Advance(2 * delay)
		assert.Never(t, func() bool { return f.srv.Dials() > 1 }, 100*time.Millisecond, tick)
	})
}

func TestRedialPicksUpNewSession(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	rest, err := api.NewClient(api.Config{Origin: srv.Origin()})
	require.NoError(t, err)
	rest.SetSession(api.Session{SessionID: "first"})

	client, err := push.NewClient(push.Options{Origin: srv.Origin(), Jar: rest.Jar(), Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)
	defer client.Close()

	client.Connect(context.Background())
	srv.WaitForConns(1)

	srv.RequireSession("second")
	rest.SetSession(api.Session{SessionID: "second"})
	require.NoError(t, client.Redial(context.Background()))
	assert.Equal(t, model.ConnOpen, client.State())
	assert.Equal(t, 2, srv.Dials())
	require.Eventually(t, func() bool { return len(srv.CloseCodes()) == 1 }, waitFor, tick)
	assert.Equal(t, []int{websocket.CloseNormalClosure}, srv.CloseCodes())
	srv.WaitForConns(1)
}

func TestTeardownCancelsPendingReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.srv.DropPush()
	f.waitState(t, model.ConnClosedAbnormal)
	require.True(t, f.client.ReconnectPending())

	require.NoError(t, f.client.Close())
	assert.False(t, f.client.ReconnectPending())
	assert.Equal(t, model.ConnClosedNormal, f.client.State())

	f.clock.Advance(2 * delay)
	assert.Never(t, func() bool { return f.srv.Dials() > 1 }, 100*time.Millisecond, tick)
}

func TestSend(t *testing.T) {
	f := newFixture(t)

	err := f.client.JoinChat("r-1")
	assert.ErrorIs(t, err, push.ErrNotConnected)

	f.connect(t)
	require.NoError(t, f.client.JoinChat("r-1"))
	require.NoError(t, f.client.SendChatMessage("r-1", "hello", 42))
	require.NoError(t, f.client.LeaveChat("r-1"))

	require.Eventually(t, func() bool { return len(f.srv.Received()) == 3 }, waitFor, tick)
	got := f.srv.Received()
	assert.Equal(t, model.KindJoinChat, got[0].Type)
	assert.Equal(t, model.KindChatMessage, got[1].Type)
	assert.Equal(t, "hello", got[1].Message)
	assert.Equal(t, int64(42), got[1].AuthorID)
	assert.NotEmpty(t, got[1].Timestamp)
	assert.Equal(t, model.KindLeaveChat, got[2].Type)
	assert.Equal(t, "r-1", got[2].ResolutionID)

	f.srv.DropPush()
	f.waitState(t, model.ConnClosedAbnormal)
	assert.ErrorIs(t, f.client.JoinChat("r-1"), push.ErrNotConnected, "sends are not queued while down")
}

func TestEventLogCap(t *testing.T) {
	f := newFixture(t, func(o *push.Options) { o.LogCap = 2 })
	done := make(chan struct{}, 3)
	f.client.OnEvent(func(model.PushEvent) { done <- struct{}{} })
	f.connect(t)

	for _, id := range []string{"a", "b", "c"} {
		f.srv.PushJSON(map[string]any{"type": "notification", "message": id, "notification_id": id})
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("events not delivered")
		}
	}

	logged := f.client.DrainNotifications()
	require.Len(t, logged, 2)
	assert.Equal(t, "b", logged[0].NotificationID)
	assert.Equal(t, "c", logged[1].NotificationID)
}

type fakeDesktop struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (d *fakeDesktop) Notify(_ context.Context, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.titles = append(d.titles, title)
	d.bodies = append(d.bodies, body)
	return nil
}

func (d *fakeDesktop) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bodies)
}

func TestDesktopNotification(t *testing.T) {
	desktop := &fakeDesktop{}
	f := newFixture(t, func(o *push.Options) { o.Desktop = desktop })
	f.connect(t)

	f.srv.PushText(`{"type":"notification","message":"Deadline near","notification_id":"1",
		"resolution":{"id":3,"public_id":"r-3","clause":"4","subclause":"2","meeting":{"number":11}}}`)
	f.srv.PushText(`{"type":"chat_message","resolution_id":"r-3","message":"not a notification"}`)

	require.Eventually(t, func() bool { return desktop.count() == 1 }, waitFor, tick)
	desktop.mu.Lock()
	assert.Equal(t, "Dabir · 11/4-2", desktop.titles[0])
	assert.Equal(t, "Deadline near", desktop.bodies[0])
	desktop.mu.Unlock()
}
