package toast_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/toast"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

type fakeSource struct {
	mu        sync.Mutex
	log       []model.NotificationEvent
	listeners []func(model.PushEvent)
}

func (s *fakeSource) OnEvent(fn func(model.PushEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	i := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[i] = nil
	}
}

func (s *fakeSource) DrainNotifications() []model.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.log
	s.log = nil
	return out
}

func (s *fakeSource) deliver(ev model.NotificationEvent) {
	s.mu.Lock()
	s.log = append(s.log, ev)
	fns := append([]func(model.PushEvent){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(model.PushEvent{Kind: model.KindNotification, Notification: &ev})
		}
	}
}

func states(q *toast.Queue) []model.ToastState {
	var out []model.ToastState
	for _, t := range q.Toasts() {
		out = append(out, t.State)
	}
	return out
}

func TestToastLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := toast.NewQueue(nil, toast.Options{Clock: clock})
	defer q.Close()

	created := q.Push("Test", "", "abc123")
	assert.Equal(t, model.SeverityInfo, created.Severity)
	assert.Equal(t, []model.ToastState{model.ToastVisible}, states(q))

	clock.Advance(4999 * time.Millisecond)
	assert.Equal(t, []model.ToastState{model.ToastVisible}, states(q))

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		s := states(q)
		return len(s) == 1 && s[0] == model.ToastDismissing
	}, waitFor, tick)

	clock.Advance(299 * time.Millisecond)
	assert.Len(t, q.Toasts(), 1)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(q.Toasts()) == 0 }, waitFor, tick)
}

func TestManualDismiss(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := toast.NewQueue(nil, toast.Options{Clock: clock})
	defer q.Close()

	first := q.Push("one", model.SeverityWarning, "")
	second := q.Push("two", model.SeverityError, "")

	assert.True(t, q.Dismiss(first.ID))
	assert.False(t, q.Dismiss(first.ID))
	toasts := q.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, second.ID, toasts[0].ID)

	// The cancelled timer never resurrects the dismissed toast.
	clock.Advance(5300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(q.Toasts()) == 0 }, waitFor, tick)

	assert.False(t, q.DismissOldest())
}

func TestConsumesSourceLog(t *testing.T) {
	src := &fakeSource{}
	src.log = []model.NotificationEvent{{Message: "early", NotificationID: "0"}}
	clock := clockwork.NewFakeClock()
	q := toast.NewQueue(src, toast.Options{Clock: clock})
	defer q.Close()

	q.Start()
	src.deliver(model.NotificationEvent{Message: "Test", NotificationID: "abc123"})
	src.deliver(model.NotificationEvent{Message: "Saved", NotificationID: "2", NotificationType: "success"})

	toasts := q.Toasts()
	require.Len(t, toasts, 3)
	assert.Equal(t, "early", toasts[0].Message)
	assert.Equal(t, "Test", toasts[1].Message)
	assert.Equal(t, model.SeverityInfo, toasts[1].Severity)
	assert.Equal(t, model.SeveritySuccess, toasts[2].Severity)
	assert.Empty(t, src.DrainNotifications(), "consumed events are drained")

	q.Close()
	src.deliver(model.NotificationEvent{Message: "late"})
	assert.Empty(t, q.Toasts())
}

func TestCustomTiming(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := toast.NewQueue(nil, toast.Options{Clock: clock, VisibleFor: time.Second, ExitFor: 100 * time.Millisecond})
	defer q.Close()

	q.Push("quick", model.SeverityInfo, "")
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		s := states(q)
		return len(s) == 1 && s[0] == model.ToastDismissing
	}, waitFor, tick)
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(q.Toasts()) == 0 }, waitFor, tick)
}
