package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/store"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// ErrClosed is returned by mutations on a store that has been closed.
var ErrClosed = errors.New("notification list is closed")

// Surface names a UI surface that owns its own list store.
type Surface string

const (
	SurfaceDropdown Surface = "dropdown"
	SurfaceModal    Surface = "modal"
)

// ListAPI is the REST boundary a list store reads and mutates through.
type ListAPI interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// ListSnapshot is a consistent view of a list store.
type ListSnapshot struct {
	State         model.LoadState
	Notifications []model.Notification
	// Unread is tallied from Notifications, for this surface only.
	Unread int
	// Err is the message of the last failed fetch while State is errored.
	Err string
	// MutationErr is the message of the last failed mark-read call.
	MutationErr string
	// Cached is true while the list comes from the local cache.
	Cached bool
}

// ListStore is the notification list of a single surface. Overlapping
// fetches are not deduplicated; whichever response lands last wins.
// Mark operations flip the local records before the REST call and keep
// the flip if the call fails.
type ListStore struct {
	surface Surface
	api     ListAPI
	bus     *eventbus.Bus
	cache   store.NotificationCache
	changes *eventbus.Changes

	mu          sync.Mutex
	state       model.LoadState
	list        []model.Notification
	errMsg      string
	mutationErr string
	cached      bool
	sub         *eventbus.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
}

// NewListStore returns an idle store. cache may be nil.
func NewListStore(surface Surface, api ListAPI, bus *eventbus.Bus, cache store.NotificationCache) *ListStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &ListStore{
		surface: surface,
		api:     api,
		bus:     bus,
		cache:   cache,
		changes: eventbus.NewChanges(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Surface returns the surface the store belongs to.
func (s *ListStore) Surface() Surface {
	return s.surface
}

// Seed fills an idle store from the local cache so the surface has
// something to show before the first fetch returns.
func (s *ListStore) Seed(ctx context.Context) {
	if s.cache == nil {
		return
	}
	list, err := s.cache.GetNotifications(ctx)
	if err != nil {
		zlog.Warn("reading cached notifications", zap.String("surface", string(s.surface)), zap.Error(err))
		return
	}
	if len(list) == 0 {
		return
	}

	s.mu.Lock()
	if s.closed || s.state != model.LoadIdle {
		s.mu.Unlock()
		return
	}
	s.list = list
	s.cached = true
	s.mu.Unlock()
	s.changes.Notify()
}

// Fetch reloads the list. The store is loading until the response is
// applied, then ready or errored.
func (s *ListStore) Fetch(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = model.LoadLoading
	s.mu.Unlock()
	s.changes.Notify()

	list, err := s.api.ListNotifications(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = model.LoadErrored
		s.errMsg = err.Error()
		s.mu.Unlock()
		zlog.Warn("fetching notifications", zap.String("surface", string(s.surface)), zap.Error(err))
		s.changes.Notify()
		return
	}
	s.state = model.LoadReady
	s.list = list
	s.errMsg = ""
	s.cached = false
	s.mu.Unlock()
	s.changes.Notify()

	if s.cache != nil {
		if err := s.cache.ReplaceNotifications(ctx, list); err != nil {
			zlog.Warn("caching notifications", zap.Error(err))
		}
	}
}

// MarkOneRead flips id to read locally, then asks the server. On success
// the global count is told to refresh.
func (s *ListStore) MarkOneRead(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Read = true
		}
	}
	s.mu.Unlock()
	s.changes.Notify()

	if err := s.api.MarkRead(ctx, id); err != nil {
		s.mutationFailed("mark read", err)
		return err
	}
	if s.cache != nil {
		if err := s.cache.MarkNotificationRead(ctx, id); err != nil {
			zlog.Warn("updating cached notification", zap.String("id", id), zap.Error(err))
		}
	}
	s.mutationDone()
	return nil
}

// MarkAllRead flips every local record to read, then asks the server.
func (s *ListStore) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for i := range s.list {
		s.list[i].Read = true
	}
	s.mu.Unlock()
	s.changes.Notify()

	if err := s.api.MarkAllRead(ctx); err != nil {
		s.mutationFailed("mark all read", err)
		return err
	}
	if s.cache != nil {
		if err := s.cache.MarkAllNotificationsRead(ctx); err != nil {
			zlog.Warn("updating cached notifications", zap.Error(err))
		}
	}
	s.mutationDone()
	return nil
}

func (s *ListStore) mutationFailed(op string, err error) {
	zlog.Warn("notification mutation failed",
		zap.String("surface", string(s.surface)),
		zap.String("op", op),
		zap.Error(err))
	s.mu.Lock()
	if !s.closed {
		s.mutationErr = err.Error()
	}
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *ListStore) mutationDone() {
	s.mu.Lock()
	s.mutationErr = ""
	s.mu.Unlock()
	s.changes.Notify()
	if s.bus != nil {
		s.bus.Publish(eventbus.RefreshNotificationCount, nil)
	}
}

// Attach is called when the surface opens: it subscribes to
// refreshNotificationCount and fetches. Every later signal re-fetches.
func (s *ListStore) Attach(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.sub == nil && s.bus != nil {
		s.sub = s.bus.Subscribe(eventbus.RefreshNotificationCount, func(any) {
			go s.Fetch(s.ctx)
		})
	}
	s.mu.Unlock()
	s.Fetch(ctx)
}

// Detach is called when the surface closes.
func (s *ListStore) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// Attached reports whether the store follows refresh signals.
func (s *ListStore) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Snapshot returns a copy of the current state.
func (s *ListStore) Snapshot() ListSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]model.Notification(nil), s.list...)
	return ListSnapshot{
		State:         s.state,
		Notifications: list,
		Unread:        model.CountUnread(list),
		Err:           s.errMsg,
		MutationErr:   s.mutationErr,
		Cached:        s.cached,
	}
}

// Changes signals every state change.
func (s *ListStore) Changes() <-chan struct{} {
	return s.changes.C()
}

// Close detaches the store for good. In-flight responses are dropped.
func (s *ListStore) Close() {
	s.Detach()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
