// Package notiflist is the notification list view shared by the recent
// dropdown and the full modal.
package notiflist

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/keys"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/notify"
	"github.com/nhle/dabir-notify/internal/theme"
)

// MarkReadMsg asks for one notification to be marked read.
type MarkReadMsg struct {
	Surface notify.Surface
	ID      string
}

// MarkAllReadMsg asks for every notification to be marked read.
type MarkAllReadMsg struct {
	Surface notify.Surface
}

// RefreshMsg asks for the surface's list to be fetched again.
type RefreshMsg struct {
	Surface notify.Surface
}

// CloseMsg is sent when the user leaves the surface.
type CloseMsg struct {
	Surface notify.Surface
}

// Model renders one surface's notification list. Limit caps the number of
// rows shown; zero shows everything.
type Model struct {
	surface notify.Surface
	title   string
	limit   int
	list    list.Model
	keys    *keys.KeyMap
	snap    notify.ListSnapshot
	width   int
	height  int
}

// New creates a list view for surface.
func New(surface notify.Surface, title string, limit int, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = title
	l.SetShowStatusBar(limit == 0)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		surface: surface,
		title:   title,
		limit:   limit,
		list:    l,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Surface returns the surface this view renders.
func (m Model) Surface() notify.Surface {
	return m.surface
}

// SetSnapshot replaces the rendered state.
func (m *Model) SetSnapshot(snap notify.ListSnapshot) tea.Cmd {
	m.snap = snap
	rows := snap.Notifications
	if m.limit > 0 && len(rows) > m.limit {
		rows = rows[:m.limit]
	}
	items := make([]list.Item, len(rows))
	for i, n := range rows {
		items[i] = Item{Notification: n}
	}
	m.list.Title = m.titleText()
	return m.list.SetItems(items)
}

func (m Model) titleText() string {
	if m.snap.Unread > 0 {
		return fmt.Sprintf("%s (%d unread)", m.title, m.snap.Unread)
	}
	return m.title
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			n, ok := m.Selected()
			if !ok || n.Read {
				return m, nil
			}
			surface := m.surface
			return m, func() tea.Msg { return MarkReadMsg{Surface: surface, ID: n.ID} }

		case key.Matches(msg, m.keys.MarkAll):
			surface := m.surface
			return m, func() tea.Msg { return MarkAllReadMsg{Surface: surface} }

		case key.Matches(msg, m.keys.Refresh):
			surface := m.surface
			return m, func() tea.Msg { return RefreshMsg{Surface: surface} }

		case key.Matches(msg, m.keys.Back):
			surface := m.surface
			return m, func() tea.Msg { return CloseMsg{Surface: surface} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or a placeholder while loading, on error or when
// empty.
func (m Model) View() string {
	var notice string
	switch {
	case m.snap.State == model.LoadErrored:
		notice = theme.ErrorStyle.Render("Could not load notifications: " + m.snap.Err)
	case m.snap.MutationErr != "":
		notice = theme.ErrorStyle.Render("Could not update: " + m.snap.MutationErr)
	case m.snap.State == model.LoadLoading:
		notice = theme.DimmedStyle.Render("Loading…")
	case m.snap.Cached:
		notice = theme.DimmedStyle.Render("Showing cached notifications")
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState(notice)
	}
	if notice == "" {
		return m.list.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, notice, m.list.View())
}

func (m Model) renderEmptyState(notice string) string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if notice != "" {
		return style.Render(notice)
	}
	if m.snap.State == model.LoadIdle {
		return style.Render("Loading…")
	}
	return style.Render("No notifications.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
