package model

import "time"

// ToastState is the lifecycle position of a toast.
type ToastState int

const (
	// ToastVisible is the initial state.
	ToastVisible ToastState = iota
	// ToastDismissing is the exit-animation window before removal.
	ToastDismissing
	// ToastRemoved is terminal; removed toasts are no longer in the queue.
	ToastRemoved
)

// String returns the state name.
func (s ToastState) String() string {
	switch s {
	case ToastVisible:
		return "visible"
	case ToastDismissing:
		return "dismissing"
	case ToastRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Toast is a short-lived, client-only popup.
type Toast struct {
	// ID identifies the toast within the queue.
	ID string

	// NotificationID is the push event's notification id, if any.
	NotificationID string

	Message   string
	Severity  Severity
	CreatedAt time.Time
	State     ToastState
}
