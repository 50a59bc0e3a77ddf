// Package toast turns push notification events into short-lived toasts.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
)

const (
	DefaultVisibleFor = 5000 * time.Millisecond
	DefaultExitFor    = 300 * time.Millisecond
)

// Source is the push client surface the queue consumes.
type Source interface {
	OnEvent(fn func(model.PushEvent)) func()
	DrainNotifications() []model.NotificationEvent
}

// Options configures a Queue.
type Options struct {
	VisibleFor time.Duration
	ExitFor    time.Duration
	Clock      clockwork.Clock
}

type entry struct {
	toast model.Toast
	timer clockwork.Timer
}

// Queue holds the active toasts in insertion order. Every toast is
// visible for VisibleFor, dismissing for ExitFor and then removed.
type Queue struct {
	src        Source
	clock      clockwork.Clock
	visibleFor time.Duration
	exitFor    time.Duration
	changes    *eventbus.Changes

	mu      sync.Mutex
	entries []*entry
	unsub   func()
	closed  bool
}

// NewQueue returns an empty queue. src may be nil for a queue that only
// shows local toasts.
func NewQueue(src Source, opts Options) *Queue {
	if opts.VisibleFor <= 0 {
		opts.VisibleFor = DefaultVisibleFor
	}
	if opts.ExitFor <= 0 {
		opts.ExitFor = DefaultExitFor
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Queue{
		src:        src,
		clock:      opts.Clock,
		visibleFor: opts.VisibleFor,
		exitFor:    opts.ExitFor,
		changes:    eventbus.NewChanges(),
	}
}

// Start consumes events already in the source log and then follows it.
func (q *Queue) Start() {
	if q.src == nil {
		return
	}
	q.mu.Lock()
	if q.unsub != nil || q.closed {
		q.mu.Unlock()
		return
	}
	q.unsub = q.src.OnEvent(func(ev model.PushEvent) {
		if ev.Kind == model.KindNotification {
			q.consume()
		}
	})
	q.mu.Unlock()
	q.consume()
}

// consume drains the source log so each event produces one toast.
func (q *Queue) consume() {
	for _, ev := range q.src.DrainNotifications() {
		q.Push(ev.Message, ev.Severity(), ev.NotificationID)
	}
}

// Push adds a toast and starts its timers.
func (q *Queue) Push(message string, severity model.Severity, notificationID string) model.Toast {
	if severity == "" {
		severity = model.SeverityInfo
	}
	e := &entry{toast: model.Toast{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Message:        message,
		Severity:       severity,
		CreatedAt:      q.clock.Now(),
		State:          model.ToastVisible,
	}}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		e.toast.State = model.ToastRemoved
		return e.toast
	}
	e.timer = q.clock.AfterFunc(q.visibleFor, func() { q.beginExit(e) })
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	q.changes.Notify()
	return e.toast
}

func (q *Queue) beginExit(e *entry) {
	q.mu.Lock()
	if q.indexLocked(e) < 0 || e.toast.State != model.ToastVisible {
		q.mu.Unlock()
		return
	}
	e.toast.State = model.ToastDismissing
	e.timer = q.clock.AfterFunc(q.exitFor, func() { q.remove(e) })
	q.mu.Unlock()
	q.changes.Notify()
}

func (q *Queue) remove(e *entry) {
	q.mu.Lock()
	i := q.indexLocked(e)
	if i < 0 {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
	e.toast.State = model.ToastRemoved
	q.mu.Unlock()
	q.changes.Notify()
}

func (q *Queue) indexLocked(e *entry) int {
	for i, v := range q.entries {
		if v == e {
			return i
		}
	}
	return -1
}

// Dismiss removes a toast at once, cancelling its timers.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	for i, e := range q.entries {
		if e.toast.ID != id {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		e.toast.State = model.ToastRemoved
		q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
		q.mu.Unlock()
		q.changes.Notify()
		return true
	}
	q.mu.Unlock()
	return false
}

// DismissOldest removes the first toast, if any.
func (q *Queue) DismissOldest() bool {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return false
	}
	id := q.entries[0].toast.ID
	q.mu.Unlock()
	return q.Dismiss(id)
}

// Toasts returns the active toasts, oldest first.
func (q *Queue) Toasts() []model.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Toast, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.toast
	}
	return out
}

// Changes signals every toast added, changed or removed.
func (q *Queue) Changes() <-chan struct{} {
	return q.changes.C()
}

// Close stops following the source and clears the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	unsub := q.unsub
	q.unsub = nil
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
	q.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	q.changes.Notify()
}
