// Package toasts renders the toast stack.
package toasts

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/theme"
)

var severityIcon = map[model.Severity]string{
	model.SeverityInfo:    "i",
	model.SeveritySuccess: "✓",
	model.SeverityWarning: "!",
	model.SeverityError:   "✗",
}

// Render draws toasts oldest first, one bordered box each, right-aligned
// within width. It returns an empty string for an empty stack.
func Render(toasts []model.Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}

	boxWidth := width / 2
	if boxWidth < 24 {
		boxWidth = width
	}

	boxes := make([]string, 0, len(toasts))
	for _, t := range toasts {
		if t.State == model.ToastRemoved {
			continue
		}
		icon := severityIcon[t.Severity]
		if icon == "" {
			icon = severityIcon[model.SeverityInfo]
		}
		line := theme.SeverityStyle(string(t.Severity)).Render(icon) + " " + strings.TrimSpace(t.Message)
		box := theme.ToastStyle(string(t.Severity), t.State == model.ToastDismissing).
			Width(boxWidth - 2).
			Render(line)
		boxes = append(boxes, box)
	}
	if len(boxes) == 0 {
		return ""
	}

	stack := lipgloss.JoinVertical(lipgloss.Right, boxes...)
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, stack)
}
