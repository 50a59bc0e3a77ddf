package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dabir-notify/internal/eventbus"
	isync "github.com/nhle/dabir-notify/internal/sync"
)

func TestRelay(t *testing.T) {
	t.Run("Forwards Changes", func(t *testing.T) {
		r := isync.New()
		defer r.Stop()
		ch := eventbus.NewChanges()
		r.Watch(isync.KindList, "modal", ch.C())

		ch.Notify()
		msg := r.WaitForNext()()
		assert.Equal(t, isync.UpdateMsg{Kind: isync.KindList, Source: "modal"}, msg)
	})

	t.Run("Stop Watcher", func(t *testing.T) {
		r := isync.New()
		defer r.Stop()
		ch := make(chan struct{})
		stop := r.Watch(isync.KindCount, "", ch)
		stop()
		stop()

		assert.Eventually(t, func() bool {
			select {
			case ch <- struct{}{}:
				return false
			default:
				return true
			}
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Stop Unblocks Wait", func(t *testing.T) {
		r := isync.New()
		done := make(chan any, 1)
		go func() { done <- r.WaitForNext()() }()
		r.Stop()
		r.Stop()

		select {
		case msg := <-done:
			assert.Nil(t, msg)
		case <-time.After(time.Second):
			require.Fail(t, "WaitForNext did not return after Stop")
		}
	})

	t.Run("Notify Never Blocks", func(t *testing.T) {
		r := isync.New()
		defer r.Stop()
		for i := 0; i < 1000; i++ {
			r.Notify(isync.UpdateMsg{Kind: isync.KindToasts})
		}
		assert.Equal(t, isync.UpdateMsg{Kind: isync.KindToasts}, r.WaitForNext()())
	})

	assert.Equal(t, "interactions", isync.KindInteractions.String())
}
