// Package config is the sign-in screen: server origin and the browser
// session cookies, checked against the server before they are kept.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dabir-notify/internal/api"
	"github.com/nhle/dabir-notify/internal/credential"
	"github.com/nhle/dabir-notify/internal/keys"
	"github.com/nhle/dabir-notify/internal/theme"
)

// Mode represents the current state of the sign-in view.
type Mode int

const (
	ModeForm           Mode = iota // Editing origin and cookies
	ModeValidating                 // Testing the session
	ModeValidateResult             // Showing a failed validation
)

const validateTimeout = 15 * time.Second

// Validator checks a session against origin, typically by fetching the
// unread count.
type Validator func(ctx context.Context, origin string, s api.Session) error

// SessionSavedMsg signals the session was validated and stored.
type SessionSavedMsg struct {
	Origin  string
	Session api.Session
}

// CancelMsg signals the view should close without changes.
type CancelMsg struct{}

// validateResultMsg carries the result of a validation attempt.
type validateResultMsg struct {
	err error
}

// Model is the Bubble Tea model for the sign-in view.
type Model struct {
	mode     Mode
	form     *huh.Form
	validate Validator
	spinner  spinner.Model

	// Form field values (huh binds to these)
	formOrigin    string
	formSessionID string
	formCSRFToken string

	validError error

	keys          *keys.KeyMap
	width, height int
}

// New creates a sign-in view prefilled with origin.
func New(origin string, validate Validator, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mode:       ModeForm,
		validate:   validate,
		spinner:    sp,
		formOrigin: origin,
		keys:       k,
		width:      width,
		height:     height,
	}
}

// Init builds a fresh form.
func (m *Model) Init() tea.Cmd {
	m.mode = ModeForm
	m.formSessionID = ""
	m.formCSRFToken = ""
	m.validError = nil
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the sign-in view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case validateResultMsg:
		if msg.err != nil {
			m.mode = ModeValidateResult
			m.validError = msg.err
			return m, nil
		}
		return m, m.saveSession()

	case spinner.TickMsg:
		if m.mode != ModeValidating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			if key.Matches(msg, m.keys.Back) {
				m.mode = ModeForm
				return m, nil
			}
			return m, nil
		case ModeValidateResult:
			switch msg.String() {
			case "r":
				return m.startValidation()
			case "enter", "esc":
				return m, m.Init()
			}
			return m, nil
		}
	}

	if m.mode == ModeForm && m.form != nil {
		if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Back) {
			return m, func() tea.Msg { return CancelMsg{} }
		}
		mdl, cmd := m.form.Update(msg)
		if f, ok := mdl.(*huh.Form); ok {
			m.form = f
		}
		switch m.form.State {
		case huh.StateCompleted:
			return m.startValidation()
		case huh.StateAborted:
			return m, func() tea.Msg { return CancelMsg{} }
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server").
				Description("Dabir web address (e.g., https://dabir.example.org)").
				Placeholder("https://dabir.example.org").
				Value(&m.formOrigin).
				Validate(validateURL),
			huh.NewInput().
				Title("Session ID").
				Description("Value of the sessionid cookie from a signed-in browser").
				EchoMode(huh.EchoModePassword).
				Value(&m.formSessionID).
				Validate(validateRequired("Session ID")),
			huh.NewInput().
				Title("CSRF Token").
				Description("Value of the csrftoken cookie; needed to mark notifications read").
				EchoMode(huh.EchoModePassword).
				Value(&m.formCSRFToken),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) session() api.Session {
	return api.Session{
		SessionID: strings.TrimSpace(m.formSessionID),
		CSRFToken: strings.TrimSpace(m.formCSRFToken),
	}
}

func (m Model) startValidation() (Model, tea.Cmd) {
	m.mode = ModeValidating
	if m.validate == nil {
		return m, m.saveSession()
	}
	origin := strings.TrimRight(strings.TrimSpace(m.formOrigin), "/")
	s := m.session()
	validate := m.validate
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		return validateResultMsg{err: validate(ctx, origin, s)}
	})
}

func (m Model) saveSession() tea.Cmd {
	origin := strings.TrimRight(strings.TrimSpace(m.formOrigin), "/")
	s := m.session()
	return func() tea.Msg {
		if err := credential.SaveSession(s); err != nil {
			return validateResultMsg{err: fmt.Errorf("saving session: %w", err)}
		}
		return SessionSavedMsg{Origin: origin, Session: s}
	}
}

// View renders the sign-in view.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	switch m.mode {
	case ModeValidating:
		return style.Render(fmt.Sprintf(
			"%s Checking session...\n\nPress esc to cancel.",
			m.spinner.View(),
		))
	case ModeValidateResult:
		errStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorRed)
		hint := "r retry | enter/esc edit"
		msg := "Sign-in failed"
		if api.IsAuthError(m.validError) {
			msg = "Session rejected by the server"
		}
		return style.Render(errStyle.Render(msg) + "\n\n" +
			m.validError.Error() + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).Render(hint))
	}

	if m.form == nil {
		return ""
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
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return errors.New("URL must include a host (e.g., https://dabir.example.org)")
	}
	return nil
}
