// Package sync carries store change signals from background goroutines
// into the Bubble Tea runtime.
package sync

import (
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Kind names the store behind an UpdateMsg.
type Kind int

const (
	KindCount Kind = iota
	KindList
	KindToasts
	KindConnection
	KindChat
	KindInteractions
)

func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindList:
		return "list"
	case KindToasts:
		return "toasts"
	case KindConnection:
		return "connection"
	case KindChat:
		return "chat"
	case KindInteractions:
		return "interactions"
	default:
		return "unknown"
	}
}

// UpdateMsg is a tea.Msg telling the UI to re-read one store. Source
// disambiguates stores of the same kind, e.g. the notification surface.
type UpdateMsg struct {
	Kind   Kind
	Source string
}

// Relay fans change channels into a single message stream.
type Relay struct {
	resultCh chan UpdateMsg
	stopCh   chan struct{}
	mu       gosync.Mutex
	stopped  bool
}

// New creates a Relay.
func New() *Relay {
	return &Relay{
		resultCh: make(chan UpdateMsg, 64),
		stopCh:   make(chan struct{}),
	}
}

// Watch forwards every receive on ch as an UpdateMsg until the returned
// stop function is called, ch is closed, or the relay stops.
func (r *Relay) Watch(kind Kind, source string, ch <-chan struct{}) func() {
	done := make(chan struct{})
	var once gosync.Once
	go func() {
		for {
			select {
			case <-r.stopCh:
				return
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				r.Notify(UpdateMsg{Kind: kind, Source: source})
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Notify queues msg without blocking.
func (r *Relay) Notify(msg UpdateMsg) {
	select {
	case r.resultCh <- msg:
	default:
		// Drop if the UI is behind; the next read sees the latest state.
	}
}

// Stop halts all watchers.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	close(r.stopCh)
	r.stopped = true
}

// WaitForNext returns a tea.Cmd that waits for the next update. It
// should be re-issued after every UpdateMsg to keep listening.
func (r *Relay) WaitForNext() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.resultCh:
			return msg
		case <-r.stopCh:
			return nil
		}
	}
}
