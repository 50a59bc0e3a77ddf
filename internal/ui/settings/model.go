// Package settings edits the per-user notification preferences.
package settings

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/theme"
)

// SubmitMsg carries the edited settings. Update holds only the changed
// fields and is empty when nothing changed.
type SubmitMsg struct {
	Prev   model.NotificationSettings
	Next   model.NotificationSettings
	Update model.SettingsUpdate
}

// CancelMsg signals the form was closed without saving.
type CancelMsg struct{}

// Model is the Bubble Tea model for the settings form.
type Model struct {
	form  *huh.Form
	prev  model.NotificationSettings
	draft model.NotificationSettings

	loaded bool
	err    error

	width, height int
}

// New creates an empty settings view; SetSettings fills it.
func New(width, height int) Model {
	return Model{width: width, height: height}
}

// SetSettings replaces the form contents with s.
func (m *Model) SetSettings(s model.NotificationSettings) tea.Cmd {
	m.prev = s
	m.draft = s
	m.loaded = true
	m.err = nil
	m.form = m.buildForm()
	return m.form.Init()
}

// SetError shows err in place of the form.
func (m *Model) SetError(err error) {
	m.err = err
}

// Loaded reports whether settings have been received.
func (m Model) Loaded() bool {
	return m.loaded
}

func toggle(title, desc string, v *bool) *huh.Confirm {
	return huh.NewConfirm().
		Title(title).
		Description(desc).
		Affirmative("On").
		Negative("Off").
		Value(v)
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			toggle("Email", "Send notification emails", &m.draft.EmailNotifications),
			toggle("Browser", "Show browser notifications", &m.draft.BrowserNotifications),
			toggle("Mobile", "Push to the mobile app", &m.draft.MobileNotifications),
		).Title("Channels"),
		huh.NewGroup(
			toggle("Resolution updates", "New and edited resolutions", &m.draft.ResolutionUpdates),
			toggle("Chat messages", "Messages in resolution chats", &m.draft.ChatMessages),
			toggle("Status changes", "Resolution status transitions", &m.draft.StatusChanges),
			toggle("Deadline reminders", "Upcoming and missed deadlines", &m.draft.DeadlineReminders),
		).Title("Topics"),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

// Update handles messages for the settings form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		prev, next := m.prev, m.draft
		m.form = nil
		return m, func() tea.Msg {
			return SubmitMsg{Prev: prev, Next: next, Update: model.Diff(prev, next)}
		}
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the settings form.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	switch {
	case m.err != nil:
		return style.Render(theme.ErrorStyle.Render("Could not load settings") +
			"\n\n" + m.err.Error() + "\n\n" + theme.DimmedStyle.Render("esc back"))
	case !m.loaded:
		return style.Render(theme.DimmedStyle.Render("Loading settings..."))
	case m.form == nil:
		return style.Render(theme.DimmedStyle.Render("Saving..."))
	}
	return style.Render(m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}
