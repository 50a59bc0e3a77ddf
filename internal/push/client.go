// Package push owns the single live websocket connection to the server's
// notification channel.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/zlog"
)

const (
	// DefaultPath is the push endpoint on the application origin.
	DefaultPath = "/ws/notifications/"

	// DefaultReconnectDelay is the fixed wait before redialing after an
	// abnormal close.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultLogCap bounds each undrained event log.
	DefaultLogCap = 100

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
	maxFrameSize   = 1 << 20
	desktopTimeout = 5 * time.Second
)

// ErrNotConnected is returned by Send while the connection is not open.
var ErrNotConnected = errors.New("push channel is not connected")

// Notifier raises a native desktop notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Options configures a Client. Origin is required.
type Options struct {
	// Origin is the http(s) origin of the web application.
	Origin string

	// Path overrides DefaultPath.
	Path string

	// ReconnectDelay overrides DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// LogCap overrides DefaultLogCap.
	LogCap int

	// Jar supplies the session cookie for the upgrade request.
	Jar http.CookieJar

	// Header is sent with the upgrade request in addition to Origin.
	Header http.Header

	// Bus receives the refresh broadcasts. Nil disables them.
	Bus *eventbus.Bus

	// Desktop, when set, is notified for every notification event.
	Desktop Notifier

	// Clock drives the reconnect timer. Defaults to the real clock.
	Clock clockwork.Clock

	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
}

// Client is the push channel client. One Client is shared by the whole
// application; consumers subscribe through OnEvent and OnStateChange
// rather than opening their own connection.
type Client struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	clock   clockwork.Clock
	delay   time.Duration
	logCap  int
	bus     *eventbus.Bus
	desktop Notifier

	mu       sync.Mutex
	state    model.ConnState
	conn     *websocket.Conn
	gen      uint64
	timer    clockwork.Timer
	torn     bool
	dials    int
	notifLog []model.NotificationEvent
	chatLog  []model.ChatMessage

	// wmu serializes writers on conn.
	wmu sync.Mutex

	events listeners[model.PushEvent]
	states listeners[model.ConnState]
}

// NewClient validates opts and returns an idle client. Nothing is dialed
// until Connect.
func NewClient(opts Options) (*Client, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	endpoint, err := EndpointURL(opts.Origin, path)
	if err != nil {
		return nil, err
	}

	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	logCap := opts.LogCap
	if logCap <= 0 {
		logCap = DefaultLogCap
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeWait,
		}
	} else {
		d := *dialer
		dialer = &d
	}
	if opts.Jar != nil {
		dialer.Jar = opts.Jar
	}

	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Origin", strings.TrimRight(opts.Origin, "/"))

	return &Client{
		url:     endpoint,
		header:  header,
		dialer:  dialer,
		clock:   clock,
		delay:   delay,
		logCap:  logCap,
		bus:     opts.Bus,
		desktop: opts.Desktop,
	}, nil
}

// EndpointURL derives the push endpoint from the application origin: the
// scheme becomes ws for http and wss for https, the host is kept and path
// replaces the origin's path.
func EndpointURL(origin, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("origin %q must use http or https", origin)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the endpoint and blocks until the handshake finishes. It
// is a no-op while a connection is open or being dialed, and after Close.
// A failed dial is not returned: it moves the client to closed-abnormal
// and arms the reconnect timer.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.torn || c.state == model.ConnOpen || c.state == model.ConnConnecting {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.dials++
	c.gen++
	gen := c.gen
	c.state = model.ConnConnecting
	c.mu.Unlock()
	c.states.emit(model.ConnConnecting)

	zlog.Debug("push dialing", zap.String("url", c.url))
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.torn || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.state = model.ConnClosedAbnormal
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		zlog.Warn("push dial failed",
			zap.String("url", c.url),
			zap.Int("status", status),
			zap.Duration("retry_in", c.delay),
			zap.Error(err))
		c.states.emit(model.ConnClosedAbnormal)
		return
	}
	c.conn = conn
	c.state = model.ConnOpen
	c.mu.Unlock()

	zlog.Info("push connected", zap.String("url", c.url))
	c.states.emit(model.ConnOpen)

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	go c.readLoop(conn, gen, done)
}

// readLoop dispatches inbound frames until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(conn, gen, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleMessage(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := c.clock.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			c.wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// closeCode extracts the close status from a read error. Errors without a
// close frame count as abnormal closure.
func closeCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return websocket.CloseAbnormalClosure
}

// handleClosed applies the close policy: 1000 is an intentional close and
// ends the session; any other code schedules one reconnect.
func (c *Client) handleClosed(conn *websocket.Conn, gen uint64, err error) {
	conn.Close()
	code := closeCode(err)

	c.mu.Lock()
	if c.torn || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	next := model.ConnClosedNormal
	if code != websocket.CloseNormalClosure {
		next = model.ConnClosedAbnormal
		c.scheduleReconnectLocked()
	}
	c.state = next
	c.mu.Unlock()

	if next == model.ConnClosedAbnormal {
		zlog.Warn("push connection lost",
			zap.Int("code", code),
			zap.Duration("retry_in", c.delay),
			zap.Error(err))
	} else {
		zlog.Info("push connection closed by server", zap.Int("code", code))
	}
	c.states.emit(next)
}

func (c *Client) scheduleReconnectLocked() {
	c.stopTimerLocked()
	var t clockwork.Timer
	t = c.clock.AfterFunc(c.delay, func() {
		c.mu.Lock()
		if c.timer != t {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		c.Connect(context.Background())
	})
	c.timer = t
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// handleMessage decodes one frame and runs its side effects. Malformed
// frames are logged and dropped without touching connection state.
func (c *Client) handleMessage(data []byte) {
	ev, err := model.DecodePushEvent(data)
	if err != nil {
		zlog.Warn("dropping malformed push frame", zap.Int("bytes", len(data)), zap.Error(err))
		return
	}

	switch {
	case ev.Notification != nil:
		c.mu.Lock()
		c.notifLog = appendCapped(c.notifLog, *ev.Notification, c.logCap)
		c.mu.Unlock()

		c.publish(eventbus.RefreshNotificationCount, *ev.Notification)
		c.raiseDesktop(*ev.Notification)
	case ev.Chat != nil:
		c.mu.Lock()
		c.chatLog = appendCapped(c.chatLog, *ev.Chat, c.logCap)
		c.mu.Unlock()

		c.publish(eventbus.RefreshChatMessages, *ev.Chat)
	case ev.Interaction != nil:
		c.publish(eventbus.RefreshInteractionNotifications, *ev.Interaction)
	default:
		zlog.Debug("ignoring push frame", zap.String("type", string(ev.Kind)))
		return
	}

	c.events.emit(ev)
}

func (c *Client) publish(sig eventbus.Signal, detail any) {
	if c.bus != nil {
		c.bus.Publish(sig, detail)
	}
}

func (c *Client) raiseDesktop(ev model.NotificationEvent) {
	if c.desktop == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), desktopTimeout)
		defer cancel()
		title := "Dabir"
		if ref := ev.ResolutionRef(); ref != nil && ref.Label() != "" {
			title = "Dabir · " + ref.Label()
		}
		if err := c.desktop.Notify(ctx, title, ev.Message); err != nil {
			zlog.Debug("desktop notification failed", zap.Error(err))
		}
	}()
}

func appendCapped[T any](log []T, v T, limit int) []T {
	log = append(log, v)
	if over := len(log) - limit; over > 0 {
		log = append(log[:0:0], log[over:]...)
	}
	return log
}

// Send serializes ev and writes it immediately. Nothing is queued while
// the connection is down; ErrNotConnected is returned instead.
func (c *Client) Send(ev model.OutboundEvent) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == model.ConnOpen
	c.mu.Unlock()

	if !open || conn == nil {
		zlog.Warn("push send while disconnected", zap.String("type", string(ev.Type)))
		return ErrNotConnected
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s frame: %w", ev.Type, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		zlog.Warn("push send failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return fmt.Errorf("writing %s frame: %w", ev.Type, err)
	}
	return nil
}

// JoinChat scopes chat delivery to a resolution room.
func (c *Client) JoinChat(resolutionID string) error {
	return c.Send(model.OutboundEvent{Type: model.KindJoinChat, ResolutionID: resolutionID})
}

// LeaveChat stops chat delivery for a resolution room.
func (c *Client) LeaveChat(resolutionID string) error {
	return c.Send(model.OutboundEvent{Type: model.KindLeaveChat, ResolutionID: resolutionID})
}

// SendChatMessage posts a message to a resolution room.
func (c *Client) SendChatMessage(resolutionID, text string, authorID int64) error {
	return c.Send(model.OutboundEvent{
		Type:         model.KindChatMessage,
		ResolutionID: resolutionID,
		Message:      text,
		AuthorID:     authorID,
		Timestamp:    c.clock.Now().UTC().Format(time.RFC3339),
	})
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == model.ConnOpen
}

// State returns the current connection state.
func (c *Client) State() model.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectPending reports whether a reconnect timer is armed.
func (c *Client) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// DialCount returns the number of dial attempts so far.
func (c *Client) DialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// OnEvent registers fn for every handled inbound event. fn runs on the
// read goroutine after the event's log append and broadcast. The returned
// func unsubscribes.
func (c *Client) OnEvent(fn func(model.PushEvent)) func() {
	return c.events.add(fn)
}

// OnStateChange registers fn for connection state transitions.
func (c *Client) OnStateChange(fn func(model.ConnState)) func() {
	return c.states.add(fn)
}

// DrainNotifications returns and clears the notification event log.
func (c *Client) DrainNotifications() []model.NotificationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notifLog
	c.notifLog = nil
	return out
}

// DrainChatMessages returns and clears the chat event log.
func (c *Client) DrainChatMessages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.chatLog
	c.chatLog = nil
	return out
}

// Disconnect closes the open connection with code 1000 and cancels any
// pending reconnect. Unlike Close the client stays usable and a later
// Connect dials again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.state = model.ConnClosedNormal
	c.mu.Unlock()

	err := c.closeConn(conn)
	if prev != model.ConnClosedNormal {
		c.states.emit(model.ConnClosedNormal)
	}
	return err
}

// Redial drops the current connection and dials again, so the handshake
// carries whatever session the cookie jar now holds.
func (c *Client) Redial(ctx context.Context) error {
	err := c.Disconnect()
	c.Connect(ctx)
	return err
}

// Close tears the client down: the reconnect timer is cancelled, an open
// connection is closed with code 1000 and no further dial happens. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return nil
	}
	c.torn = true
	c.stopTimerLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.state = model.ConnClosedNormal
	c.mu.Unlock()

	err := c.closeConn(conn)
	if prev != model.ConnClosedNormal {
		c.states.emit(model.ConnClosedNormal)
	}
	return err
}

// closeConn sends a normal close frame on conn and closes it.
func (c *Client) closeConn(conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.wmu.Lock()
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.wmu.Unlock()
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	zlog.Info("push connection closed", zap.String("url", c.url))
	if err != nil {
		return fmt.Errorf("closing push connection: %w", err)
	}
	return nil
}
