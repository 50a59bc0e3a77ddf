package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Severity is the display category of a notification or toast.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity normalizes a wire value, falling back to SeverityInfo for
// empty or unknown input.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeveritySuccess, SeverityWarning, SeverityError:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

// FlexID is an identifier that the server may encode either as a JSON
// string or as a JSON number.
type FlexID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// Int64 returns the identifier as an integer, or 0 when it is not numeric.
func (id FlexID) Int64() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// MeetingRef is the meeting a resolution was passed in.
type MeetingRef struct {
	Number int `json:"number"`
}

// ResolutionRef is the resolution a notification links to.
type ResolutionRef struct {
	// ID is the internal resolution identifier.
	ID FlexID `json:"id"`

	// PublicID is the identifier used in resolution URLs and chat rooms.
	PublicID string `json:"public_id"`

	// Clause and Subclause locate the resolution within its meeting.
	Clause    string `json:"clause"`
	Subclause string `json:"subclause"`

	// Meeting is nil when the resolution is not attached to a meeting.
	Meeting *MeetingRef `json:"meeting,omitempty"`
}

// Label returns a short human-readable reference such as "12/3-1".
func (r *ResolutionRef) Label() string {
	if r == nil {
		return ""
	}
	label := r.Clause
	if r.Subclause != "" {
		label += "-" + r.Subclause
	}
	if r.Meeting != nil {
		label = fmt.Sprintf("%d/%s", r.Meeting.Number, label)
	}
	return label
}

// Notification is a server-owned notification record cached by the client.
// Records are never created client-side; only the Read flag is mutated,
// and only through explicit mark-read operations.
type Notification struct {
	// ID is the unique, opaque identifier assigned by the server.
	ID string `json:"id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// SentAt is when the server created the notification.
	SentAt time.Time `json:"sent_at"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// Type is the display severity of the notification.
	Type Severity `json:"notification_type,omitempty"`

	// Priority is one of low, normal, high, urgent.
	Priority string `json:"priority,omitempty"`

	// ActionURL optionally points at the page the notification refers to.
	ActionURL string `json:"action_url,omitempty"`

	// Metadata holds arbitrary server-side extras.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Resolution is the linked resolution, if any.
	Resolution *ResolutionRef `json:"resolution,omitempty"`
}

// CountUnread returns the number of records in list whose Read flag is
// false. It is a local tally only and never the authoritative count.
func CountUnread(list []Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

// NotificationSettings are the per-user delivery preferences.
type NotificationSettings struct {
	EmailNotifications   bool `json:"email_notifications"`
	BrowserNotifications bool `json:"browser_notifications"`
	MobileNotifications  bool `json:"mobile_notifications"`
	ResolutionUpdates    bool `json:"resolution_updates"`
	ChatMessages         bool `json:"chat_messages"`
	StatusChanges        bool `json:"status_changes"`
	DeadlineReminders    bool `json:"deadline_reminders"`
}

// DefaultNotificationSettings mirrors the server defaults for a new user.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		EmailNotifications:   true,
		BrowserNotifications: true,
		MobileNotifications:  false,
		ResolutionUpdates:    true,
		ChatMessages:         true,
		StatusChanges:        true,
		DeadlineReminders:    true,
	}
}

// SettingsUpdate is a partial settings change; nil fields are left
// untouched by the server.
type SettingsUpdate struct {
	EmailNotifications   *bool `json:"email_notifications,omitempty"`
	BrowserNotifications *bool `json:"browser_notifications,omitempty"`
	MobileNotifications  *bool `json:"mobile_notifications,omitempty"`
	ResolutionUpdates    *bool `json:"resolution_updates,omitempty"`
	ChatMessages         *bool `json:"chat_messages,omitempty"`
	StatusChanges        *bool `json:"status_changes,omitempty"`
	DeadlineReminders    *bool `json:"deadline_reminders,omitempty"`
}

// Apply merges the non-nil fields of u into s.
func (u SettingsUpdate) Apply(s NotificationSettings) NotificationSettings {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.EmailNotifications, u.EmailNotifications)
	set(&s.BrowserNotifications, u.BrowserNotifications)
	set(&s.MobileNotifications, u.MobileNotifications)
	set(&s.ResolutionUpdates, u.ResolutionUpdates)
	set(&s.ChatMessages, u.ChatMessages)
	set(&s.StatusChanges, u.StatusChanges)
	set(&s.DeadlineReminders, u.DeadlineReminders)
	return s
}

// Diff returns the update that turns from into to.
func Diff(from, to NotificationSettings) SettingsUpdate {
	var u SettingsUpdate
	pick := func(a, b bool) *bool {
		if a == b {
			return nil
		}
		v := b
		return &v
	}
	u.EmailNotifications = pick(from.EmailNotifications, to.EmailNotifications)
	u.BrowserNotifications = pick(from.BrowserNotifications, to.BrowserNotifications)
	u.MobileNotifications = pick(from.MobileNotifications, to.MobileNotifications)
	u.ResolutionUpdates = pick(from.ResolutionUpdates, to.ResolutionUpdates)
	u.ChatMessages = pick(from.ChatMessages, to.ChatMessages)
	u.StatusChanges = pick(from.StatusChanges, to.StatusChanges)
	u.DeadlineReminders = pick(from.DeadlineReminders, to.DeadlineReminders)
	return u
}

// IsEmpty reports whether the update changes nothing.
func (u SettingsUpdate) IsEmpty() bool {
	return u.EmailNotifications == nil &&
		u.BrowserNotifications == nil &&
		u.MobileNotifications == nil &&
		u.ResolutionUpdates == nil &&
		u.ChatMessages == nil &&
		u.StatusChanges == nil &&
		u.DeadlineReminders == nil
}
