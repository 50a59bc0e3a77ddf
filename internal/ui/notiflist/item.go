package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Message }

// Title returns the notification text.
func (i Item) Title() string { return i.Notification.Message }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{string(i.Notification.Type), relativeTime(i.Notification.SentAt, time.Now())}
	if label := i.Notification.Resolution.Label(); label != "" {
		parts = append(parts, label)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate renders one notification per line.
type ItemDelegate struct {
	// now is stubbed in tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list line: unread dot, severity, message,
// resolution reference and age.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	prefix := " "
	if !n.Read {
		prefix = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	sev := n.Type
	if sev == "" {
		sev = model.SeverityInfo
	}
	sevBadge := theme.SeverityStyle(string(sev)).Render(strings.ToUpper(string(sev))[:min(4, len(sev))])

	ref := ""
	if label := n.Resolution.Label(); label != "" {
		ref = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(" [" + label + "]")
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.SentAt, now()))

	line := fmt.Sprintf("%s %s %s%s  %s", prefix, sevBadge, n.Message, ref, age)
	if n.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly age of t as seen at now.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
