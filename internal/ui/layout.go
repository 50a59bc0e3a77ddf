package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// maxBadge is the largest count the badge spells out.
const maxBadge = 99

// BadgeText returns the unread badge label: empty for zero, "99+" above
// maxBadge.
func BadgeText(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > maxBadge:
		return strconv.Itoa(maxBadge) + "+"
	default:
		return strconv.Itoa(count)
	}
}

// ConnectionText returns the push indicator label for a state.
func ConnectionText(state model.ConnState) string {
	switch state {
	case model.ConnOpen:
		return "● live"
	case model.ConnConnecting:
		return "○ connecting"
	case model.ConnClosedAbnormal:
		return "○ reconnecting"
	default:
		return "○ offline"
	}
}

// RenderHeader renders the top header bar: title with the unread badge on
// the left, the push connection indicator on the right.
func (l Layout) RenderHeader(title string, unread int, state model.ConnState) string {
	titleRendered := theme.HeaderStyle.Render(title)
	if badge := BadgeText(unread); badge != "" {
		titleRendered = lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, theme.BadgeStyle.Render(badge))
	}

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Foreground(theme.ConnectionStyle(state == model.ConnOpen).GetForeground()).
		Render(ConnectionText(state))

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		fill(theme.HeaderStyle, gap),
		statusRendered,
	)
}

// fill returns gap columns painted with style's background.
func fill(style lipgloss.Style, gap int) string {
	if gap <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, fill(theme.StatusBarStyle, gap))
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, the content area with the toast stack under it, and the
// status bar. The content is clipped so the frame keeps its height.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	toasts string,
	statusBar string,
) string {
	avail := l.ContentHeight()
	if toasts != "" {
		avail -= lipgloss.Height(toasts)
	}
	if avail < 0 {
		avail = 0
	}
	body := lipgloss.NewStyle().MaxHeight(avail).Render(content)
	if toasts != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, toasts)
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		body,
		statusBar,
	)
}
