// Package command is the ":" palette. A line is a command name and an
// optional argument, e.g. "recent", "chat r-42" or "test warning hello".
package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/theme"
)

// historyLimit caps how many executed lines up/down can recall.
const historyLimit = 20

// CommandMsg is emitted when a line is executed. Name is lower-cased; Arg
// is the rest of the line, trimmed.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse splits line into a CommandMsg. It reports false for a blank line.
func Parse(line string) (CommandMsg, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return CommandMsg{}, false
	}
	name, arg, _ := strings.Cut(line, " ")
	return CommandMsg{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

type Model struct {
	input   textinput.Model
	history []string
	recall  int
	width   int
	height  int
}

// New returns a palette that completes the given command names on tab.
func New(commands []string, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "recent, all, chat <id>, test [severity] <message>..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(commands)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			parsed, ok := Parse(line)
			if !ok {
				return m, nil
			}
			m.remember(strings.TrimSpace(line))
			return m, func() tea.Msg { return parsed }
		case "up":
			m.step(1)
			return m, nil
		case "down":
			m.step(-1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// remember records line as the most recent history entry.
func (m *Model) remember(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
	}
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	m.recall = 0
}

// step moves through history; recall 0 is the empty line.
func (m *Model) step(delta int) {
	next := m.recall + delta
	if next < 0 || next > len(m.history) {
		return
	}
	m.recall = next
	if next == 0 {
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[len(m.history)-next])
	m.input.CursorEnd()
}

func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Run a command"),
		m.input.View(),
	)
	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus clears any recalled line and focuses the input.
func (m *Model) Focus() tea.Cmd {
	m.recall = 0
	m.input.Reset()
	return m.input.Focus()
}
