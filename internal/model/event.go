package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind is the "type" discriminant of a push channel frame.
type EventKind string

// Inbound kinds.
const (
	KindNotification            EventKind = "notification"
	KindChatMessage             EventKind = "chat_message"
	KindInteractionNotification EventKind = "interaction_notification"
)

// Outbound kinds. KindChatMessage is used in both directions.
const (
	KindJoinChat  EventKind = "join_chat"
	KindLeaveChat EventKind = "leave_chat"
)

// ErrMissingKind is returned for frames without a "type" field.
var ErrMissingKind = errors.New("push frame has no type")

// NotificationEvent is the wake-up frame sent when a notification is
// created for the user. It is a liveness hint, not the authoritative record.
type NotificationEvent struct {
	Message          string          `json:"message"`
	NotificationID   string          `json:"notification_id"`
	NotificationType string          `json:"notification_type,omitempty"`
	Resolution       json.RawMessage `json:"resolution,omitempty"`
}

// Severity returns the event's display severity, defaulting to info.
func (e NotificationEvent) Severity() Severity {
	return ParseSeverity(e.NotificationType)
}

// ResolutionRef decodes the optional resolution attachment. The server
// sends either an object, a bare identifier string, or null.
func (e NotificationEvent) ResolutionRef() *ResolutionRef {
	raw := bytes.TrimSpace(e.Resolution)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			return nil
		}
		return &ResolutionRef{ID: FlexID(id)}
	}
	var ref ResolutionRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil
	}
	return &ref
}

// ChatMessage is a message in a resolution's chat room.
type ChatMessage struct {
	ResolutionID string `json:"resolution_id"`
	Message      string `json:"message"`
	AuthorID     FlexID `json:"author_id"`
	AuthorName   string `json:"author_name,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// InteractionEvent announces a new interaction on a resolution.
type InteractionEvent struct {
	ResolutionID    string          `json:"resolution_id"`
	InteractionData json.RawMessage `json:"interaction_data,omitempty"`
	AuthorName      string          `json:"author_name,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
}

// PushEvent is one decoded inbound frame. Exactly one of the payload
// pointers is set for known kinds; all are nil for unknown kinds.
type PushEvent struct {
	Kind         EventKind
	Notification *NotificationEvent
	Chat         *ChatMessage
	Interaction  *InteractionEvent
}

// Known reports whether the event kind is one the client handles.
func (e PushEvent) Known() bool {
	return e.Notification != nil || e.Chat != nil || e.Interaction != nil
}

// DecodePushEvent parses a text frame. Unknown kinds decode successfully
// with no payload set; malformed JSON and frames without a type fail.
func DecodePushEvent(data []byte) (PushEvent, error) {
	var envelope struct {
		Type EventKind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return PushEvent{}, fmt.Errorf("decoding push frame: %w", err)
	}
	if envelope.Type == "" {
		return PushEvent{}, ErrMissingKind
	}

	ev := PushEvent{Kind: envelope.Type}
	switch envelope.Type {
	case KindNotification:
		var n NotificationEvent
		if err := json.Unmarshal(data, &n); err != nil {
			return PushEvent{}, fmt.Errorf("decoding %s frame: %w", envelope.Type, err)
		}
		ev.Notification = &n
	case KindChatMessage:
		var c ChatMessage
		if err := json.Unmarshal(data, &c); err != nil {
			return PushEvent{}, fmt.Errorf("decoding %s frame: %w", envelope.Type, err)
		}
		ev.Chat = &c
	case KindInteractionNotification:
		var i InteractionEvent
		if err := json.Unmarshal(data, &i); err != nil {
			return PushEvent{}, fmt.Errorf("decoding %s frame: %w", envelope.Type, err)
		}
		ev.Interaction = &i
	}
	return ev, nil
}

// OutboundEvent is a client-to-server frame.
type OutboundEvent struct {
	Type         EventKind `json:"type"`
	ResolutionID string    `json:"resolution_id"`
	Message      string    `json:"message,omitempty"`
	AuthorID     int64     `json:"author_id,omitempty"`
	Timestamp    string    `json:"timestamp,omitempty"`
}
