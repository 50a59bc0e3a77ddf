// Package eventbus is the in-process broadcast used to tell independent
// consumers that server state changed and should be re-fetched.
package eventbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/zlog"
)

// Signal names a broadcast kind.
type Signal string

const (
	RefreshNotificationCount        Signal = "refreshNotificationCount"
	RefreshChatMessages             Signal = "refreshChatMessages"
	RefreshInteractionNotifications Signal = "refreshInteractionNotifications"
)

// Handler receives the optional detail attached to a publish.
type Handler func(detail any)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus    *Bus
	signal Signal
	id     uint64
	once   sync.Once
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.signal, s.id) })
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus delivers every publish synchronously to the handlers registered for
// the signal at that moment, in registration order. A publish with no
// subscribers is dropped.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Signal][]entry
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Signal][]entry)}
}

// Subscribe registers h for sig.
func (b *Bus) Subscribe(sig Signal, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[sig] = append(b.subs[sig], entry{id: b.nextID, handler: h})
	return &Subscription{bus: b, signal: sig, id: b.nextID}
}

func (b *Bus) remove(sig Signal, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sig]
	for i, e := range list {
		if e.id == id {
			// Copy so snapshots held by in-flight publishes stay intact.
			next := make([]entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, sig)
			} else {
				b.subs[sig] = next
			}
			return
		}
	}
}

// Publish invokes every handler registered for sig and returns how many
// were called. Handlers run on the caller's goroutine, outside the bus
// lock, so they may subscribe, unsubscribe or publish. A panicking handler
// is logged and does not stop delivery to the rest.
func (b *Bus) Publish(sig Signal, detail any) int {
	b.mu.RLock()
	list := b.subs[sig]
	b.mu.RUnlock()

	for _, e := range list {
		b.call(sig, e.handler, detail)
	}
	return len(list)
}

func (b *Bus) call(sig Signal, h Handler, detail any) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error("event handler panicked",
				zap.String("signal", string(sig)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	h(detail)
}

// SubscriberCount returns the number of handlers registered for sig.
func (b *Bus) SubscriberCount(sig Signal) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sig])
}
