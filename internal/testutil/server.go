package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/model"
)

// Route names used for hit counters, failure injection and hooks.
const (
	RouteUnreadCount  = "unread-count"
	RouteList         = "list"
	RouteMarkRead     = "mark-read"
	RouteMarkAllRead  = "mark-all-read"
	RouteSettings     = "settings"
	RouteTest         = "test"
	RouteInteractions = "interactions"
	RoutePush         = "push"
	RouteUserInfo     = "user-info"
)

const writeWait = 2 * time.Second

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *peer) write(messageType int, data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(messageType, data)
}

// FakeServer is an httptest server standing in for the dabir backend. The
// unread count it reports is derived from its notification list unless
// pinned with SetCount.
type FakeServer struct {
	*httptest.Server

	t        testing.TB
	upgrader websocket.Upgrader

	mu            sync.Mutex
	notifications []model.Notification
	pinnedCount   *int
	settings      model.NotificationSettings
	interactions  map[string]model.InteractionsPage
	user          model.UserRef
	wrapResults   bool
	session       string
	failures      map[string]int
	throttled     map[string]int
	hooks         map[string]func()
	hits          map[string]int
	lastHeaders   map[string]http.Header
	lastBodies    map[string][]byte
	peers         []*peer
	dials         int
	received      []model.OutboundEvent
	closeCodes    []int
	rejectPush    bool
}

// NewFakeServer starts a server closed with the test.
func NewFakeServer(t testing.TB) *FakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &FakeServer{
		t:            t,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		settings:     model.DefaultNotificationSettings(),
		user:         model.UserRef{ID: "7", Username: "tester", FirstName: "Test", LastName: "User"},
		interactions: make(map[string]model.InteractionsPage),
		failures:     make(map[string]int),
		throttled:    make(map[string]int),
		hooks:        make(map[string]func()),
		hits:         make(map[string]int),
		lastHeaders:  make(map[string]http.Header),
		lastBodies:   make(map[string][]byte),
	}

	r := gin.New()
	api := r.Group("/api")
	api.GET("/notifications/unread-count/", s.route(RouteUnreadCount, s.handleUnreadCount))
	api.GET("/notifications/user/", s.route(RouteList, s.handleList))
	api.GET("/notifications/settings/", s.route(RouteSettings, s.handleGetSettings))
	api.PUT("/notifications/settings/", s.route(RouteSettings, s.handlePutSettings))
	api.PUT("/notifications/mark-all-read/", s.route(RouteMarkAllRead, s.handleMarkAllRead))
	api.POST("/notifications/*rest", s.handleNotificationPost)
	api.GET("/resolutions/:public_id/interactions/", s.route(RouteInteractions, s.handleInteractions))
	api.GET("/user-info/", s.route(RouteUserInfo, s.handleUserInfo))
	r.GET("/ws/notifications/", s.handlePush)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Close drops all push connections and stops the server.
func (s *FakeServer) Close() {
	s.DropPush()
	s.Server.Close()
}

// route wraps h with session checks, hit counting, hooks and failure
// injection.
func (s *FakeServer) route(name string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, _ := c.GetRawData()

		s.mu.Lock()
		s.hits[name]++
		s.lastHeaders[name] = c.Request.Header.Clone()
		s.lastBodies[name] = body
		hook := s.hooks[name]
		status := s.failures[name]
		throttle := s.throttled[name] > 0
		if throttle {
			s.throttled[name]--
		}
		session := s.session
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if session != "" && !s.authorized(c, session) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		if throttle {
			c.Header("Retry-After", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Request was throttled."})
			return
		}
		if status != 0 {
			c.JSON(status, gin.H{"detail": "injected failure"})
			return
		}
		c.Set("body", body)
		h(c)
	}
}

func requestBody(c *gin.Context) []byte {
	if v, ok := c.Get("body"); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

func (s *FakeServer) authorized(c *gin.Context, session string) bool {
	id, err := c.Cookie("sessionid")
	if err != nil || id != session {
		return false
	}
	if c.Request.Method == http.MethodGet {
		return true
	}
	token, err := c.Cookie("csrftoken")
	return err == nil && token != "" && c.GetHeader("X-CSRFToken") == token
}

func (s *FakeServer) handleUnreadCount(c *gin.Context) {
	s.mu.Lock()
	count := model.CountUnread(s.notifications)
	if s.pinnedCount != nil {
		count = *s.pinnedCount
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *FakeServer) handleList(c *gin.Context) {
	s.mu.Lock()
	list := append([]model.Notification{}, s.notifications...)
	wrap := s.wrapResults
	s.mu.Unlock()

	if wrap {
		c.JSON(http.StatusOK, gin.H{"count": len(list), "next": nil, "previous": nil, "results": list})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *FakeServer) handleGetSettings(c *gin.Context) {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()
	c.JSON(http.StatusOK, settings)
}

func (s *FakeServer) handlePutSettings(c *gin.Context) {
	var update model.SettingsUpdate
	if err := json.Unmarshal(requestBody(c), &update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.settings = update.Apply(s.settings)
	settings := s.settings
	s.mu.Unlock()
	c.JSON(http.StatusOK, settings)
}

func (s *FakeServer) handleMarkAllRead(c *gin.Context) {
	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// handleNotificationPost dispatches POST /notifications/{id}/read/ and
// POST /notifications/test/ from one wildcard route.
func (s *FakeServer) handleNotificationPost(c *gin.Context) {
	rest := strings.Trim(c.Param("rest"), "/")
	if rest == "test" {
		s.route(RouteTest, s.handleTest)(c)
		return
	}
	id, ok := strings.CutSuffix(rest, "/read")
	if !ok || id == "" || strings.Contains(id, "/") {
		c.Status(http.StatusNotFound)
		return
	}
	c.Set("id", id)
	s.route(RouteMarkRead, s.handleMarkRead)(c)
}

func (s *FakeServer) handleMarkRead(c *gin.Context) {
	id := c.GetString("id")
	s.mu.Lock()
	found := false
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			found = true
		}
	}
	s.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (s *FakeServer) handleTest(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(requestBody(c), &req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	s.mu.Lock()
	id := strconv.Itoa(len(s.notifications) + 1)
	s.notifications = append([]model.Notification{{
		ID:      id,
		Message: req.Message,
		SentAt:  time.Now().UTC(),
		Type:    model.ParseSeverity(req.Type),
	}}, s.notifications...)
	s.mu.Unlock()

	s.PushJSON(map[string]any{
		"type":              "notification",
		"message":           req.Message,
		"notification_id":   id,
		"notification_type": req.Type,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent", "notification_id": id})
}

func (s *FakeServer) handleInteractions(c *gin.Context) {
	s.mu.Lock()
	page, ok := s.interactions[c.Param("public_id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *FakeServer) handleUserInfo(c *gin.Context) {
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"id":         u.ID.Int64(),
		"username":   u.Username,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
	})
}

func (s *FakeServer) handlePush(c *gin.Context) {
	s.mu.Lock()
	s.dials++
	s.hits[RoutePush]++
	s.lastHeaders[RoutePush] = c.Request.Header.Clone()
	reject := s.rejectPush
	session := s.session
	s.mu.Unlock()

	if reject {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	if session != "" {
		if id, err := c.Cookie("sessionid"); err != nil || id != session {
			c.Status(http.StatusForbidden)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()

	defer func() {
		s.removePeer(p)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			s.mu.Lock()
			s.closeCodes = append(s.closeCodes, code)
			s.mu.Unlock()
			return
		}
		var ev model.OutboundEvent
		if json.Unmarshal(data, &ev) == nil {
			s.mu.Lock()
			s.received = append(s.received, ev)
			s.mu.Unlock()
		}
	}
}

func (s *FakeServer) removePeer(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.peers {
		if q == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			return
		}
	}
}

func (s *FakeServer) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*peer(nil), s.peers...)
}

// Origin returns the server's http origin.
func (s *FakeServer) Origin() string { return s.Server.URL }

// SetNotifications replaces the server's notification list.
func (s *FakeServer) SetNotifications(list []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]model.Notification{}, list...)
}

// AddNotification prepends n to the list, like the server creating one.
func (s *FakeServer) AddNotification(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]model.Notification{n}, s.notifications...)
}

// Notifications returns a copy of the server's list.
func (s *FakeServer) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification{}, s.notifications...)
}

// SetCount pins the reported unread count. A negative value unpins it.
func (s *FakeServer) SetCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		s.pinnedCount = nil
		return
	}
	s.pinnedCount = &n
}

// WrapResults switches the list endpoint to the paginated envelope.
func (s *FakeServer) WrapResults(wrap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapResults = wrap
}

// SetInteractions registers the interaction page for a resolution.
func (s *FakeServer) SetInteractions(publicID string, page model.InteractionsPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[publicID] = page
}

// SetUser replaces the signed-in user reported by /user-info/.
func (s *FakeServer) SetUser(u model.UserRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// Settings returns the stored settings.
func (s *FakeServer) Settings() model.NotificationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// RequireSession makes every route demand the given sessionid cookie, and
// a matching CSRF header on unsafe methods.
func (s *FakeServer) RequireSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = id
}

// Fail makes route answer with status until cleared with a zero status.
func (s *FakeServer) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Throttle makes the next n calls to route answer 429 with Retry-After: 0.
func (s *FakeServer) Throttle(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttled[route] = n
}

// Hook runs fn at the start of every call to route, before the response
// is produced. Blocking in fn holds the response back.
func (s *FakeServer) Hook(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, route)
		return
	}
	s.hooks[route] = fn
}

// RejectPush makes websocket upgrades fail with 503.
func (s *FakeServer) RejectPush(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectPush = reject
}

// Hits returns how many times route was called.
func (s *FakeServer) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// LastHeader returns a header of the most recent call to route.
func (s *FakeServer) LastHeader(route, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.lastHeaders[route]; h != nil {
		return h.Get(key)
	}
	return ""
}

// LastBody returns the request body of the most recent call to route.
func (s *FakeServer) LastBody(route string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBodies[route]
}

// Dials returns the number of push upgrade attempts.
func (s *FakeServer) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Conns returns the number of live push connections.
func (s *FakeServer) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Received returns the frames clients sent over the push channel.
func (s *FakeServer) Received() []model.OutboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboundEvent(nil), s.received...)
}

// CloseCodes returns the close codes of finished push connections, as
// observed from the server side.
func (s *FakeServer) CloseCodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closeCodes...)
}

// WaitForConns blocks until n push connections are live.
func (s *FakeServer) WaitForConns(n int) {
	s.t.Helper()
	require.Eventually(s.t, func() bool { return s.Conns() == n }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d push connections", n)
}

// PushText sends a raw text frame to every live connection.
func (s *FakeServer) PushText(text string) {
	for _, p := range s.snapshotPeers() {
		_ = p.write(websocket.TextMessage, []byte(text))
	}
}

// PushJSON sends v as a JSON text frame to every live connection.
func (s *FakeServer) PushJSON(v any) {
	data, err := json.Marshal(v)
	require.NoError(s.t, err)
	s.PushText(string(data))
}

// ClosePush sends a close frame with code to every live connection.
func (s *FakeServer) ClosePush(code int) {
	for _, p := range s.snapshotPeers() {
		msg := websocket.FormatCloseMessage(code, "")
		p.wmu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		p.wmu.Unlock()
		p.conn.Close()
	}
}

// DropPush closes every live connection's socket without a close frame.
func (s *FakeServer) DropPush() {
	for _, p := range s.snapshotPeers() {
		p.conn.UnderlyingConn().Close()
	}
}
