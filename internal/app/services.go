package app

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/api"
	"github.com/nhle/dabir-notify/internal/credential"
	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/feed"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/notify"
	"github.com/nhle/dabir-notify/internal/push"
	"github.com/nhle/dabir-notify/internal/store"
	appsync "github.com/nhle/dabir-notify/internal/sync"
	"github.com/nhle/dabir-notify/internal/toast"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// requestTimeout bounds a single user-triggered call.
const requestTimeout = 30 * time.Second

// ErrNoChat is returned when a chat operation runs with no room open.
var ErrNoChat = errors.New("no chat room is open")

// Options carries optional collaborators for NewServices.
type Options struct {
	// Cache keeps the notification snapshot and chat archive. May be nil.
	Cache store.Store

	// Desktop raises native notifications for push events. May be nil.
	Desktop push.Notifier

	// Clock drives the reconnect and toast timers.
	Clock clockwork.Clock
}

// Services owns the long-lived client state shared by every view: one
// REST client, one push connection, one bus and the stores fed by them.
type Services struct {
	Config   *model.AppConfig
	API      *api.Client
	Bus      *eventbus.Bus
	Push     *push.Client
	Count    *notify.CountStore
	Dropdown *notify.ListStore
	Modal    *notify.ListStore
	Toasts   *toast.Queue
	Cache    store.Store
	Relay    *appsync.Relay

	ctx    context.Context
	cancel context.CancelFunc

	mu          gosync.Mutex
	user        *model.UserRef
	chat        *feed.ChatRoom
	interact    *feed.InteractionFeed
	chatUnwatch []func()
	unwatch     []func()
	started     bool
	closed      bool
}

// NewServices builds the stores for cfg. Nothing touches the network
// until Start.
func NewServices(cfg *model.AppConfig, opts Options) (*Services, error) {
	client, err := api.NewClient(api.Config{
		Origin:  cfg.Server.Origin,
		Prefix:  cfg.Server.APIPrefix,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	bus := eventbus.New()
	pc, err := push.NewClient(push.Options{
		Origin:         cfg.Server.Origin,
		ReconnectDelay: cfg.ReconnectDelay(),
		LogCap:         cfg.Push.EventLogCap,
		Jar:            client.Jar(),
		Bus:            bus,
		Desktop:        opts.Desktop,
		Clock:          opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating push client: %w", err)
	}

	var cache store.NotificationCache
	if opts.Cache != nil {
		cache = opts.Cache
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Services{
		Config:   cfg,
		API:      client,
		Bus:      bus,
		Push:     pc,
		Count:    notify.NewCountStore(client, bus),
		Dropdown: notify.NewListStore(notify.SurfaceDropdown, client, bus, cache),
		Modal:    notify.NewListStore(notify.SurfaceModal, client, bus, cache),
		Toasts: toast.NewQueue(pc, toast.Options{
			VisibleFor: cfg.ToastVisible(),
			ExitFor:    cfg.ToastExit(),
			Clock:      opts.Clock,
		}),
		Cache:  opts.Cache,
		Relay:  appsync.New(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start wires the stores to the relay, seeds the lists from the cache,
// refreshes the badge and opens the push channel. It blocks until the
// first count refresh returns; the push dial runs in the background.
func (s *Services) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	r := s.Relay
	s.unwatch = append(s.unwatch,
		r.Watch(appsync.KindCount, "", s.Count.Changes()),
		r.Watch(appsync.KindList, string(notify.SurfaceDropdown), s.Dropdown.Changes()),
		r.Watch(appsync.KindList, string(notify.SurfaceModal), s.Modal.Changes()),
		r.Watch(appsync.KindToasts, "", s.Toasts.Changes()),
		s.Push.OnStateChange(func(model.ConnState) {
			r.Notify(appsync.UpdateMsg{Kind: appsync.KindConnection})
		}),
	)
	s.mu.Unlock()

	s.Toasts.Start()
	s.Dropdown.Seed(s.ctx)
	s.Modal.Seed(s.ctx)
	go s.Push.Connect(s.ctx)
	s.Count.Start(s.ctx)
}

// Reconnect dials the push channel now instead of waiting for the timer.
func (s *Services) Reconnect() {
	go s.Push.Connect(s.ctx)
}

// Context is cancelled by Close.
func (s *Services) Context() context.Context {
	return s.ctx
}

// SetSession switches the REST client to sess, refreshes the badge under
// it and redials the push channel so it authenticates as the new user.
func (s *Services) SetSession(sess api.Session) {
	s.API.SetSession(sess)
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.Count.Refresh(s.ctx)
	if err := s.Push.Redial(s.ctx); err != nil {
		zlog.Warn("dropping previous push session", zap.Error(err))
	}
}

// Logout forgets the stored session and drops the push connection that
// was opened under it.
func (s *Services) Logout() error {
	s.API.ClearSession()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	if err := s.Push.Disconnect(); err != nil {
		zlog.Warn("closing push connection on logout", zap.Error(err))
	}
	if err := credential.ClearSession(); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	s.Count.Refresh(s.ctx)
	return nil
}

// CurrentUser returns the session's user, fetched once and then kept
// until the session changes.
func (s *Services) CurrentUser(ctx context.Context) (*model.UserRef, error) {
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()
	if u != nil {
		return u, nil
	}

	u, err := s.API.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return u, nil
}

// OpenChat closes any open room and opens the chat and interaction feed
// of the resolution with publicID.
func (s *Services) OpenChat(publicID string) (*feed.ChatRoom, *feed.InteractionFeed) {
	s.CloseChat()

	var archive store.ChatArchive
	if s.Cache != nil {
		archive = s.Cache
	}
	room := feed.NewChatRoom(publicID, s.Push, s.Bus, archive)
	interactions := feed.NewInteractionFeed(publicID, s.API, s.Bus)

	s.mu.Lock()
	s.chat = room
	s.interact = interactions
	s.chatUnwatch = []func(){
		s.Relay.Watch(appsync.KindChat, publicID, room.Changes()),
		s.Relay.Watch(appsync.KindInteractions, publicID, interactions.Changes()),
	}
	s.mu.Unlock()

	zlog.Info("opening chat", zap.String("resolution", publicID))
	room.Open(s.ctx)
	go interactions.Open(s.ctx)
	return room, interactions
}

// Chat returns the open room and feed, or nils.
func (s *Services) Chat() (*feed.ChatRoom, *feed.InteractionFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat, s.interact
}

// SendChat sends text to the open room as the session's user.
func (s *Services) SendChat(ctx context.Context, text string) error {
	room, _ := s.Chat()
	if room == nil {
		return ErrNoChat
	}
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving chat author: %w", err)
	}
	return room.Send(text, u.ID.Int64())
}

// CloseChat leaves the open room, if any.
func (s *Services) CloseChat() {
	s.mu.Lock()
	room, interactions, unwatch := s.chat, s.interact, s.chatUnwatch
	s.chat, s.interact, s.chatUnwatch = nil, nil, nil
	s.mu.Unlock()

	for _, stop := range unwatch {
		stop()
	}
	if room != nil {
		room.Close()
	}
	if interactions != nil {
		interactions.Close()
	}
}

// Close tears everything down. It is safe to call more than once.
func (s *Services) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	s.CloseChat()
	for _, stop := range unwatch {
		stop()
	}
	s.Count.Close()
	s.Dropdown.Close()
	s.Modal.Close()
	s.Toasts.Close()
	if err := s.Push.Close(); err != nil {
		zlog.Warn("closing push client", zap.Error(err))
	}
	s.Relay.Stop()
	s.cancel()
}

// ValidateSession checks sess against origin by asking who owns it.
func ValidateSession(ctx context.Context, origin string, sess api.Session) error {
	client, err := api.NewClient(api.Config{Origin: origin})
	if err != nil {
		return err
	}
	client.SetSession(sess)
	if _, err := client.CurrentUser(ctx); err != nil {
		return err
	}
	return nil
}
