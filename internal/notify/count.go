// Package notify holds the client-side notification state: the
// authoritative unread count behind the badge and the per-surface
// notification lists.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// CountAPI is the REST boundary the count store pulls from.
type CountAPI interface {
	UnreadCount(ctx context.Context) (int, error)
}

// CountStore holds the server-reported unread count.
type CountStore struct {
	api     CountAPI
	bus     *eventbus.Bus
	changes *eventbus.Changes

	mu      sync.Mutex
	count   int
	loaded  bool
	lastErr error
	seq     uint64
	applied uint64
	sub     *eventbus.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
}

// NewCountStore returns a store with a zero count. Call Start to load it.
func NewCountStore(api CountAPI, bus *eventbus.Bus) *CountStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &CountStore{
		api:     api,
		bus:     bus,
		changes: eventbus.NewChanges(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to refreshNotificationCount and performs the initial
// refresh. Calling it again only refreshes.
func (s *CountStore) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sub == nil && !s.closed && s.bus != nil {
		s.sub = s.bus.Subscribe(eventbus.RefreshNotificationCount, func(any) {
			go s.Refresh(s.ctx)
		})
	}
	s.mu.Unlock()
	s.Refresh(ctx)
}

// Refresh replaces the count with the server's. A failed pull leaves the
// previous value in place. When refreshes overlap, a response never
// overwrites the result of a refresh issued after it.
func (s *CountStore) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	n, err := s.api.UnreadCount(ctx)

	s.mu.Lock()
	if s.closed || seq <= s.applied {
		s.mu.Unlock()
		zlog.Debug("discarding stale unread count", zap.Uint64("seq", seq))
		return
	}
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		zlog.Warn("refreshing unread count", zap.Error(err))
		s.changes.Notify()
		return
	}
	s.applied = seq
	s.count = n
	s.loaded = true
	s.lastErr = nil
	s.mu.Unlock()
	s.changes.Notify()
}

// Count returns the last applied unread count.
func (s *CountStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Loaded reports whether any refresh has succeeded.
func (s *CountStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// LastError returns the error of the most recent failed refresh, cleared
// by the next success.
func (s *CountStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Changes signals every applied refresh.
func (s *CountStore) Changes() <-chan struct{} {
	return s.changes.C()
}

// Close unsubscribes. Responses still in flight are ignored.
func (s *CountStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.cancel()
}
