package notiflist_test

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/keys"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/notify"
	"github.com/nhle/dabir-notify/internal/testutil"
	"github.com/nhle/dabir-notify/internal/ui/notiflist"
)

func newModel(limit int) notiflist.Model {
	return notiflist.New(notify.SurfaceDropdown, "Recent", limit, keys.DefaultKeyMap(), 80, 20)
}

func TestSetSnapshot(t *testing.T) {
	m := newModel(2)
	m.SetSnapshot(notify.ListSnapshot{
		State:         model.LoadReady,
		Notifications: testutil.Notifications(5, 1),
		Unread:        1,
	})

	view := m.View()
	assert.Contains(t, view, "Recent (1 unread)")
	assert.Contains(t, view, "notification 1")
	assert.NotContains(t, view, "notification 3", "dropdown shows only the most recent rows")
}

func TestStates(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		m := newModel(0)
		m.SetSnapshot(notify.ListSnapshot{State: model.LoadReady})
		assert.Contains(t, m.View(), "No notifications.")
	})

	t.Run("Errored", func(t *testing.T) {
		m := newModel(0)
		m.SetSnapshot(notify.ListSnapshot{State: model.LoadErrored, Err: "boom"})
		assert.Contains(t, m.View(), "boom")
	})
}

func TestKeysEmitIntents(t *testing.T) {
	m := newModel(0)
	m.SetSnapshot(notify.ListSnapshot{State: model.LoadReady, Notifications: testutil.Notifications(2, 2)})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, notiflist.MarkReadMsg{Surface: notify.SurfaceDropdown, ID: "n1"}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("A")})
	require.NotNil(t, cmd)
	assert.Equal(t, notiflist.MarkAllReadMsg{Surface: notify.SurfaceDropdown}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, notiflist.CloseMsg{Surface: notify.SurfaceDropdown}, cmd())
}
