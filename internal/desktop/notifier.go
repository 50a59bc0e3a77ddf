// Package desktop raises native notifications through the freedesktop
// notification service on the session bus.
package desktop

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/zlog"
)

const (
	notifyObj    = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"

	// AppName is reported to the notification daemon.
	AppName = "dabir"

	defaultExpire = int32(-1)
)

// Notifier sends notifications over dbus. The session bus is dialed on the
// first Notify; when no session bus is available every call is a no-op.
type Notifier struct {
	appName string

	once sync.Once
	obj  dbus.BusObject
	err  error

	connect func() (dbus.BusObject, error)
}

// New returns a Notifier that lazily connects to the session bus.
func New() *Notifier {
	return &Notifier{
		appName: AppName,
		connect: func() (dbus.BusObject, error) {
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, err
			}
			return conn.Object(notifyObj, notifyPath), nil
		},
	}
}

// NewWithObject returns a Notifier bound to obj, for callers that manage
// their own bus connection.
func NewWithObject(obj dbus.BusObject) *Notifier {
	return &Notifier{
		appName: AppName,
		connect: func() (dbus.BusObject, error) { return obj, nil },
	}
}

func (n *Notifier) object() (dbus.BusObject, error) {
	n.once.Do(func() {
		n.obj, n.err = n.connect()
		if n.err != nil {
			zlog.Warn("desktop notifications unavailable", zap.Error(n.err))
		}
	})
	return n.obj, n.err
}

// Notify shows title and body. A missing session bus is not an error.
func (n *Notifier) Notify(ctx context.Context, title, body string) error {
	obj, err := n.object()
	if err != nil || obj == nil {
		return nil
	}

	call := obj.CallWithContext(ctx, notifyMethod, 0, NotifyArgs(n.appName, title, body)...)
	if call.Err != nil {
		return fmt.Errorf("sending desktop notification %q: %w", title, call.Err)
	}
	return nil
}

// NotifyArgs builds the argument list of the Notify method: app name,
// replaces id, icon, summary, body, actions, hints and expire timeout.
func NotifyArgs(appName, title, body string) []any {
	return []any{
		appName,
		uint32(0),
		"",
		title,
		body,
		[]string{},
		map[string]dbus.Variant{},
		defaultExpire,
	}
}
