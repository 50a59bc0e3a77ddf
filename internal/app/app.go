package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/api"
	"github.com/nhle/dabir-notify/internal/keys"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/notify"
	appsync "github.com/nhle/dabir-notify/internal/sync"
	"github.com/nhle/dabir-notify/internal/theme"
	"github.com/nhle/dabir-notify/internal/ui"
	chatview "github.com/nhle/dabir-notify/internal/ui/chat"
	"github.com/nhle/dabir-notify/internal/ui/command"
	configview "github.com/nhle/dabir-notify/internal/ui/config"
	helpview "github.com/nhle/dabir-notify/internal/ui/help"
	"github.com/nhle/dabir-notify/internal/ui/notiflist"
	settingsview "github.com/nhle/dabir-notify/internal/ui/settings"
	"github.com/nhle/dabir-notify/internal/ui/toasts"
	"github.com/nhle/dabir-notify/internal/zlog"
)

// recentLimit is the number of rows on the dropdown surface.
const recentLimit = 5

// Commands accepted by the command palette.
var Commands = []string{
	"recent", "all", "chat", "settings", "login", "logout",
	"test", "reconnect", "refresh", "quit",
}

// startedMsg is sent once Services.Start returns.
type startedMsg struct{}

// actionResultMsg reports the outcome of a user-triggered call.
type actionResultMsg struct {
	action string
	err    error
}

// settingsLoadedMsg carries the server's notification settings.
type settingsLoadedMsg struct {
	settings *model.NotificationSettings
	err      error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewHome ViewState = iota
	ViewDropdown
	ViewModal
	ViewChat
	ViewSettings
	ViewSession
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing, layout
// and the mirror of the shared stores.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	svc          *Services
	keys         *keys.KeyMap

	dropdown     notiflist.Model
	modal        notiflist.Model
	chatView     chatview.Model
	settingsView settingsview.Model
	configView   configview.Model
	helpView     helpview.Model
	commandView  command.Model

	unread    int
	countErr  error
	conn      model.ConnState
	toasts    []model.Toast
	statusMsg string
	ready     bool
	formInit  tea.Cmd
}

// New creates the root model. With signIn set the sign-in form opens
// first.
func New(svc *Services, signIn bool) Model {
	k := keys.DefaultKeyMap()
	m := Model{
		currentView:  ViewHome,
		svc:          svc,
		keys:         k,
		dropdown:     notiflist.New(notify.SurfaceDropdown, "Recent", recentLimit, k, 80, 24),
		modal:        notiflist.New(notify.SurfaceModal, "Notifications", 0, k, 80, 24),
		settingsView: settingsview.New(80, 24),
		configView:   configview.New(svc.Config.Server.Origin, ValidateSession, k, 80, 24),
		helpView:     helpview.New(k, Commands, 80, 24),
		commandView:  command.New(Commands, 80, 24),
	}
	if signIn {
		m.currentView = ViewSession
		m.formInit = m.configView.Init()
	}
	return m
}

// Init starts the services and begins listening for store updates.
func (m Model) Init() tea.Cmd {
	svc := m.svc
	cmds := []tea.Cmd{
		func() tea.Msg {
			svc.Start()
			return startedMsg{}
		},
		svc.Relay.WaitForNext(),
	}
	if m.formInit != nil {
		cmds = append(cmds, m.formInit)
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.dropdown.SetSize(w, h)
		m.modal.SetSize(w, h)
		m.chatView.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		m.configView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case startedMsg:
		zlog.Info("services started", zap.String("origin", m.svc.Config.Server.Origin))
		return m, nil

	case appsync.UpdateMsg:
		cmd := m.applyUpdate(msg)
		return m, tea.Batch(cmd, m.svc.Relay.WaitForNext())

	case actionResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			zlog.Warn("action failed", zap.String("action", msg.action), zap.Error(msg.err))
		} else {
			m.statusMsg = ""
		}
		return m, nil

	case notiflist.MarkReadMsg:
		return m, m.markRead(msg.Surface, msg.ID)

	case notiflist.MarkAllReadMsg:
		return m, m.markAllRead(msg.Surface)

	case notiflist.RefreshMsg:
		return m, m.fetchList(msg.Surface)

	case notiflist.CloseMsg:
		return m.closeSurface(), nil

	case chatview.SendMsg:
		return m, m.sendChat(msg.Text)

	case chatview.BackMsg:
		m.svc.CloseChat()
		m.currentView = ViewHome
		return m, nil

	case settingsLoadedMsg:
		if msg.err != nil {
			m.settingsView.SetError(msg.err)
			return m, nil
		}
		return m, m.settingsView.SetSettings(*msg.settings)

	case settingsview.SubmitMsg:
		m.currentView = ViewHome
		if msg.Update.IsEmpty() {
			return m, nil
		}
		return m, m.saveSettings(msg.Update)

	case settingsview.CancelMsg:
		m.currentView = ViewHome
		return m, nil

	case configview.SessionSavedMsg:
		m.currentView = ViewHome
		m.statusMsg = ""
		return m, m.applySession(msg.Session)

	case configview.CancelMsg:
		m.currentView = ViewHome
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if m.acceptsText() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewHome {
				return m, m.quit()
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}

		case key.Matches(msg, m.keys.Dismiss):
			m.svc.Toasts.DismissOldest()
			return m, nil
		}

		if m.currentView == ViewHome || m.onSurface() {
			switch {
			case key.Matches(msg, m.keys.Recent):
				return m.openSurface(ViewDropdown)
			case key.Matches(msg, m.keys.ViewAll):
				return m.openSurface(ViewModal)
			case key.Matches(msg, m.keys.Settings):
				return m.openSettings()
			case key.Matches(msg, m.keys.Session):
				return m.openSession()
			case key.Matches(msg, m.keys.TestNotify):
				return m, m.sendTest("Test notification", model.SeverityInfo)
			case key.Matches(msg, m.keys.Reconnect):
				m.svc.Reconnect()
				return m, nil
			case key.Matches(msg, m.keys.Chat):
				if n, ok := m.selected(); ok && n.Resolution != nil && n.Resolution.PublicID != "" {
					return m.openChat(n.Resolution.PublicID)
				}
				return m, nil
			}
		}

		if m.currentView == ViewHome && key.Matches(msg, m.keys.Refresh) {
			return m, m.refreshCount()
		}
	}

	return m.updateActiveView(msg)
}

// acceptsText reports whether the active view consumes printable keys.
func (m Model) acceptsText() bool {
	switch m.currentView {
	case ViewChat, ViewSettings, ViewSession, ViewCommand:
		return true
	}
	return false
}

func (m Model) onSurface() bool {
	return m.currentView == ViewDropdown || m.currentView == ViewModal
}

func (m Model) selected() (model.Notification, bool) {
	switch m.currentView {
	case ViewDropdown:
		return m.dropdown.Selected()
	case ViewModal:
		return m.modal.Selected()
	}
	return model.Notification{}, false
}

// applyUpdate copies the state of the store named by msg into the views.
func (m *Model) applyUpdate(msg appsync.UpdateMsg) tea.Cmd {
	switch msg.Kind {
	case appsync.KindCount:
		m.unread = m.svc.Count.Count()
		m.countErr = m.svc.Count.LastError()
	case appsync.KindList:
		if msg.Source == string(notify.SurfaceDropdown) {
			return m.dropdown.SetSnapshot(m.svc.Dropdown.Snapshot())
		}
		return m.modal.SetSnapshot(m.svc.Modal.Snapshot())
	case appsync.KindToasts:
		m.toasts = m.svc.Toasts.Toasts()
	case appsync.KindConnection:
		m.conn = m.svc.Push.State()
		m.chatView.SetConnected(m.conn == model.ConnOpen)
	case appsync.KindChat:
		if room, _ := m.svc.Chat(); room != nil && room.ResolutionID() == msg.Source {
			m.chatView.SetMessages(room.Messages())
		}
	case appsync.KindInteractions:
		if _, f := m.svc.Chat(); f != nil {
			m.chatView.SetInteractions(f.Snapshot())
		}
	}
	return nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewDropdown:
		m.dropdown, cmd = m.dropdown.Update(msg)
	case ViewModal:
		m.modal, cmd = m.modal.Update(msg)
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewSession:
		m.configView, cmd = m.configView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Back) {
			m.currentView = m.previousView
			return m, nil
		}
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// openSurface attaches the surface's store, which fetches, and detaches
// the other one.
func (m Model) openSurface(v ViewState) (tea.Model, tea.Cmd) {
	m = m.closeSurface()
	m.currentView = v
	store := m.svc.Dropdown
	if v == ViewModal {
		store = m.svc.Modal
	}
	ctx := m.svc.Context()
	return m, func() tea.Msg {
		store.Attach(ctx)
		return nil
	}
}

func (m Model) closeSurface() Model {
	switch m.currentView {
	case ViewDropdown:
		m.svc.Dropdown.Detach()
	case ViewModal:
		m.svc.Modal.Detach()
	default:
		return m
	}
	m.currentView = ViewHome
	return m
}

func (m Model) openChat(publicID string) (tea.Model, tea.Cmd) {
	m = m.closeSurface()
	m.currentView = ViewChat
	m.chatView = chatview.New(publicID, m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
	m.chatView.SetConnected(m.conn == model.ConnOpen)
	svc := m.svc
	return m, tea.Batch(m.chatView.Init(), func() tea.Msg {
		svc.OpenChat(publicID)
		return nil
	})
}

func (m Model) openSettings() (tea.Model, tea.Cmd) {
	m = m.closeSurface()
	m.currentView = ViewSettings
	m.settingsView = settingsview.New(m.layout.ContentWidth(), m.layout.ContentHeight())
	client, ctx := m.svc.API, m.svc.Context()
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		s, err := client.Settings(ctx)
		return settingsLoadedMsg{settings: s, err: err}
	}
}

func (m Model) openSession() (tea.Model, tea.Cmd) {
	m = m.closeSurface()
	m.currentView = ViewSession
	return m, m.configView.Init()
}

func (m Model) quit() tea.Cmd {
	m.svc.Close()
	return tea.Quit
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(c command.CommandMsg) (tea.Model, tea.Cmd) {
	arg := c.Arg
	switch c.Name {
	case "recent":
		return m.openSurface(ViewDropdown)
	case "all":
		return m.openSurface(ViewModal)
	case "chat":
		if arg == "" {
			m.statusMsg = "usage: chat <resolution id>"
			return m, nil
		}
		return m.openChat(arg)
	case "settings":
		return m.openSettings()
	case "login", "session":
		return m.openSession()
	case "logout":
		return m, m.logout()
	case "test":
		msg, sev := arg, model.SeverityInfo
		if first, rest, ok := strings.Cut(arg, " "); ok {
			if s := model.ParseSeverity(first); string(s) == first {
				msg, sev = rest, s
			}
		}
		if msg == "" {
			msg = "Test notification"
		}
		return m, m.sendTest(msg, sev)
	case "reconnect":
		m.svc.Reconnect()
		return m, nil
	case "refresh":
		return m, m.refreshCount()
	case "quit", "q":
		return m, m.quit()
	default:
		m.statusMsg = fmt.Sprintf("unknown command %q", c.Name)
		return m, nil
	}
}

func (m Model) listStore(surface notify.Surface) *notify.ListStore {
	if surface == notify.SurfaceDropdown {
		return m.svc.Dropdown
	}
	return m.svc.Modal
}

func (m Model) markRead(surface notify.Surface, id string) tea.Cmd {
	store, ctx := m.listStore(surface), m.svc.Context()
	return func() tea.Msg {
		return actionResultMsg{action: "mark read", err: store.MarkOneRead(ctx, id)}
	}
}

func (m Model) markAllRead(surface notify.Surface) tea.Cmd {
	store, ctx := m.listStore(surface), m.svc.Context()
	return func() tea.Msg {
		return actionResultMsg{action: "mark all read", err: store.MarkAllRead(ctx)}
	}
}

func (m Model) fetchList(surface notify.Surface) tea.Cmd {
	store, ctx := m.listStore(surface), m.svc.Context()
	return func() tea.Msg {
		store.Fetch(ctx)
		return nil
	}
}

func (m Model) refreshCount() tea.Cmd {
	count, ctx := m.svc.Count, m.svc.Context()
	return func() tea.Msg {
		count.Refresh(ctx)
		return nil
	}
}

func (m Model) sendTest(message string, sev model.Severity) tea.Cmd {
	client, ctx := m.svc.API, m.svc.Context()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return actionResultMsg{action: "test notification", err: client.SendTestNotification(ctx, message, sev)}
	}
}

func (m Model) saveSettings(u model.SettingsUpdate) tea.Cmd {
	client, ctx := m.svc.API, m.svc.Context()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := client.UpdateSettings(ctx, u)
		return actionResultMsg{action: "save settings", err: err}
	}
}

func (m Model) sendChat(text string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(svc.Context(), requestTimeout)
		defer cancel()
		return actionResultMsg{action: "send message", err: svc.SendChat(ctx, text)}
	}
}

func (m Model) applySession(s api.Session) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		svc.SetSession(s)
		return nil
	}
}

func (m Model) logout() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return actionResultMsg{action: "logout", err: svc.Logout()}
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Dabir", m.unread, m.conn)
	stack := toasts.Render(m.toasts, m.layout.ContentWidth())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), stack, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDropdown:
		return m.dropdown.View()
	case ViewModal:
		return m.modal.View()
	case ViewChat:
		return m.chatView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewSession:
		return m.configView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return m.renderHome()
	}
}

func (m Model) renderHome() string {
	label := lipgloss.NewStyle().Foreground(theme.ColorGray)
	value := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	unread := fmt.Sprintf("%d", m.unread)
	if !m.svc.Count.Loaded() {
		unread = "-"
	}
	lines := []string{
		value.Render("Notifications"),
		"",
		label.Render("Unread:   ") + value.Render(unread),
		label.Render("Push:     ") + theme.ConnectionStyle(m.conn == model.ConnOpen).Render(ui.ConnectionText(m.conn)),
		label.Render("Server:   ") + value.Render(m.svc.Config.Server.Origin),
	}
	if m.countErr != nil {
		lines = append(lines, "", theme.ErrorStyle.Render(m.countErr.Error()))
	}
	lines = append(lines, "", theme.DimmedStyle.Render("n recent | N all | s settings | t test | ? help"))

	return theme.PanelStyle.
		Width(m.layout.ContentWidth() - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if api.IsAuthError(m.countErr) && m.currentView != ViewSession {
		return "session expired: press L to sign in"
	}
	if m.statusMsg != "" {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | up/down history | esc back"
	case ViewDropdown, ViewModal:
		return "enter mark read | A mark all | c chat | r refresh | esc back"
	case ViewChat:
		return "enter send | pgup/pgdn scroll | esc close"
	case ViewSettings:
		return "enter next | esc cancel"
	case ViewSession:
		return "enter next | esc cancel"
	default:
		return "q quit | ? help | : command | n recent | N all | x dismiss"
	}
}
