// Package feed follows the per-resolution streams: the live chat room and
// the interaction list.
package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/eventbus"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/store"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// historyLimit bounds the archived transcript loaded on open.
const historyLimit = 200

// ErrEmptyMessage is returned when sending a blank chat message.
var ErrEmptyMessage = errors.New("chat message is empty")

// ChatConn is the push client surface a chat room needs.
type ChatConn interface {
	JoinChat(resolutionID string) error
	LeaveChat(resolutionID string) error
	SendChatMessage(resolutionID, text string, authorID int64) error
	IsConnected() bool
	OnStateChange(fn func(model.ConnState)) func()
}

// ChatRoom is the chat of one resolution. The transcript only grows from
// refreshChatMessages broadcasts, so a sent message shows up once the
// server echoes it to the room.
type ChatRoom struct {
	resolutionID string
	conn         ChatConn
	bus          *eventbus.Bus
	archive      store.ChatArchive
	changes      *eventbus.Changes

	mu        sync.Mutex
	messages  []model.ChatMessage
	sub       *eventbus.Subscription
	stopState func()
	open      bool
}

// NewChatRoom returns a closed room. archive may be nil.
func NewChatRoom(resolutionID string, conn ChatConn, bus *eventbus.Bus, archive store.ChatArchive) *ChatRoom {
	return &ChatRoom{
		resolutionID: resolutionID,
		conn:         conn,
		bus:          bus,
		archive:      archive,
		changes:      eventbus.NewChanges(),
	}
}

// ResolutionID returns the room id.
func (r *ChatRoom) ResolutionID() string {
	return r.resolutionID
}

// Open loads the archived transcript, starts following broadcasts and
// joins the room. The room is joined again after every reconnect.
func (r *ChatRoom) Open(ctx context.Context) {
	r.mu.Lock()
	if r.open {
		r.mu.Unlock()
		return
	}
	r.open = true
	r.mu.Unlock()

	if r.archive != nil {
		history, err := r.archive.GetChatMessages(ctx, r.resolutionID, historyLimit)
		if err != nil {
			zlog.Warn("loading chat history", zap.String("resolution", r.resolutionID), zap.Error(err))
		}
		r.mu.Lock()
		r.messages = append(history, r.messages...)
		r.mu.Unlock()
	}

	var sub *eventbus.Subscription
	if r.bus != nil {
		sub = r.bus.Subscribe(eventbus.RefreshChatMessages, r.handleBroadcast)
	}
	stop := r.conn.OnStateChange(func(s model.ConnState) {
		if s == model.ConnOpen {
			r.join()
		}
	})

	r.mu.Lock()
	r.sub = sub
	r.stopState = stop
	r.mu.Unlock()

	if r.conn.IsConnected() {
		r.join()
	}
	r.changes.Notify()
}

func (r *ChatRoom) join() {
	if err := r.conn.JoinChat(r.resolutionID); err != nil {
		zlog.Debug("joining chat", zap.String("resolution", r.resolutionID), zap.Error(err))
	}
}

func (r *ChatRoom) handleBroadcast(detail any) {
	msg, ok := detail.(model.ChatMessage)
	if !ok || msg.ResolutionID != r.resolutionID {
		return
	}

	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return
	}
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.changes.Notify()

	if r.archive != nil {
		go func() {
			if err := r.archive.AppendChatMessage(context.Background(), msg); err != nil {
				zlog.Warn("archiving chat message", zap.String("resolution", msg.ResolutionID), zap.Error(err))
			}
		}()
	}
}

// Send posts text to the room. Nothing is sent while disconnected.
func (r *ChatRoom) Send(text string, authorID int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return r.conn.SendChatMessage(r.resolutionID, text, authorID)
}

// Messages returns the transcript, oldest first.
func (r *ChatRoom) Messages() []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChatMessage(nil), r.messages...)
}

// Changes signals every transcript change.
func (r *ChatRoom) Changes() <-chan struct{} {
	return r.changes.C()
}

// Close leaves the room and stops following it.
func (r *ChatRoom) Close() {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return
	}
	r.open = false
	sub, stop := r.sub, r.stopState
	r.sub, r.stopState = nil, nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if stop != nil {
		stop()
	}
	if r.conn.IsConnected() {
		if err := r.conn.LeaveChat(r.resolutionID); err != nil {
			zlog.Debug("leaving chat", zap.String("resolution", r.resolutionID), zap.Error(err))
		}
	}
}
