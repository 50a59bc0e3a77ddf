// Package chat renders a resolution's chat transcript, its interaction
// history and a message composer.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/feed"
	"github.com/nhle/dabir-notify/internal/keys"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/theme"
)

// BackMsg signals the parent to close the chat view.
type BackMsg struct{}

// SendMsg asks the parent to send Text to the open room.
type SendMsg struct {
	ResolutionID string
	Text         string
}

// Model is the chat view component.
type Model struct {
	resolutionID string
	messages     []model.ChatMessage
	interactions feed.InteractionSnapshot
	connected    bool

	viewport viewport.Model
	input    textinput.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a chat view for resolutionID.
func New(resolutionID string, k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-3)
	vp.Style = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Placeholder = "Write a message..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	return Model{
		resolutionID: resolutionID,
		viewport:     vp,
		input:        ti,
		keys:         k,
		width:        width,
		height:       height,
	}
}

// ResolutionID returns the room shown by the view.
func (m Model) ResolutionID() string {
	return m.resolutionID
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// SetMessages replaces the transcript and scrolls to the newest message.
func (m *Model) SetMessages(msgs []model.ChatMessage) {
	m.messages = msgs
	m.refresh()
	m.viewport.GotoBottom()
}

// SetInteractions replaces the interaction history.
func (m *Model) SetInteractions(snap feed.InteractionSnapshot) {
	m.interactions = snap
	m.refresh()
}

// SetConnected toggles the offline hint above the composer.
func (m *Model) SetConnected(connected bool) {
	m.connected = connected
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderContent())
}

// Update handles messages for the chat view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case k.Type == tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			id := m.resolutionID
			return m, func() tea.Msg { return SendMsg{ResolutionID: id, Text: text} }
		case k.Type == tea.KeyPgUp, k.Type == tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m Model) View() string {
	hint := ""
	if !m.connected {
		hint = theme.DimmedStyle.Render("offline: messages send once reconnected") + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		hint+m.input.View(),
	)
}

func (m Model) renderContent() string {
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))

	sections = append(sections, titleStyle.Render(
		fmt.Sprintf("Interactions (%s)", m.interactions.State)))
	switch m.interactions.State {
	case model.LoadErrored:
		sections = append(sections, theme.ErrorStyle.Render(m.interactions.Err))
	case model.LoadReady:
		if len(m.interactions.Page.Comments) == 0 {
			sections = append(sections, theme.DimmedStyle.Render("No interactions yet"))
			break
		}
		for _, c := range m.interactions.Page.Comments {
			sections = append(sections, fmt.Sprintf("%s  %s  %s",
				authorStyle.Render(c.Author.DisplayName()),
				timeStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")),
				theme.DimmedStyle.Render(c.CommentType),
			))
			if c.Content != "" {
				sections = append(sections, c.Content)
			}
		}
	}

	sections = append(sections, "", separator, "")
	sections = append(sections, titleStyle.Render(fmt.Sprintf("Chat (%d)", len(m.messages))))

	if len(m.messages) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No messages"))
	}
	for _, msg := range m.messages {
		author := msg.AuthorName
		if author == "" {
			author = "user " + string(msg.AuthorID)
		}
		sections = append(sections, fmt.Sprintf("%s  %s",
			authorStyle.Render(author),
			timeStyle.Render(msg.Timestamp),
		))
		sections = append(sections, msg.Message)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the chat view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 3
	m.input.Width = width - 4
	m.refresh()
}
