package model

import (
	"strings"
	"time"
)

// UserRef is the author summary embedded in interaction records.
type UserRef struct {
	ID        FlexID `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName returns the full name, falling back to the username.
func (u UserRef) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// Interaction is one comment or action on a resolution.
type Interaction struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	CommentType string         `json:"comment_type"`
	CreatedAt   time.Time      `json:"created_at"`
	Author      UserRef        `json:"author"`
	ActionData  map[string]any `json:"action_data,omitempty"`
}

// InteractionsPage is the interaction listing of a resolution along with
// the caller's permissions on it.
type InteractionsPage struct {
	Comments         []Interaction `json:"comments"`
	CanChat          bool          `json:"can_chat"`
	CanAccept        bool          `json:"can_accept"`
	CanReturn        bool          `json:"can_return"`
	ChatParticipants []UserRef     `json:"chat_participants"`
}
