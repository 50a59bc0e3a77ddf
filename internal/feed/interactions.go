package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// InteractionsAPI is the REST boundary of an interaction feed.
type InteractionsAPI interface {
	Interactions(ctx context.Context, publicID string) (*model.InteractionsPage, error)
}

// InteractionSnapshot is a consistent view of an interaction feed.
type InteractionSnapshot struct {
	State model.LoadState
	Page  model.InteractionsPage
	Err   string
}

// InteractionFeed is the comment and action list of one resolution. A
// matching refreshInteractionNotifications broadcast triggers a re-fetch;
// the broadcast payload itself is never merged in.
type InteractionFeed struct {
	publicID string
	api      InteractionsAPI
	bus      *eventbus.Bus
	changes  *eventbus.Changes

	mu     sync.Mutex
	state  model.LoadState
	page   model.InteractionsPage
	errMsg string
	sub    *eventbus.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewInteractionFeed returns an idle feed.
func NewInteractionFeed(publicID string, api InteractionsAPI, bus *eventbus.Bus) *InteractionFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &InteractionFeed{
		publicID: publicID,
		api:      api,
		bus:      bus,
		changes:  eventbus.NewChanges(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open subscribes and fetches.
func (f *InteractionFeed) Open(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.sub == nil && f.bus != nil {
		f.sub = f.bus.Subscribe(eventbus.RefreshInteractionNotifications, func(detail any) {
			ev, ok := detail.(model.InteractionEvent)
			if ok && ev.ResolutionID != f.publicID {
				return
			}
			go f.Fetch(f.ctx)
		})
	}
	f.mu.Unlock()
	f.Fetch(ctx)
}

// Fetch reloads the page.
func (f *InteractionFeed) Fetch(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.state = model.LoadLoading
	f.mu.Unlock()
	f.changes.Notify()

	page, err := f.api.Interactions(ctx, f.publicID)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if err != nil {
		f.state = model.LoadErrored
		f.errMsg = err.Error()
		f.mu.Unlock()
		zlog.Warn("fetching interactions", zap.String("resolution", f.publicID), zap.Error(err))
		f.changes.Notify()
		return
	}
	f.state = model.LoadReady
	f.page = *page
	f.errMsg = ""
	f.mu.Unlock()
	f.changes.Notify()
}

// Snapshot returns a copy of the current state.
func (f *InteractionFeed) Snapshot() InteractionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.page
	page.Comments = append([]model.Interaction(nil), f.page.Comments...)
	return InteractionSnapshot{State: f.state, Page: page, Err: f.errMsg}
}

// Changes signals every state change.
func (f *InteractionFeed) Changes() <-chan struct{} {
	return f.changes.C()
}

// Close unsubscribes. In-flight responses are dropped.
func (f *InteractionFeed) Close() {
	f.mu.Lock()
	f.closed = true
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	f.cancel()
}
