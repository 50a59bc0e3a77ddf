package eventbus

// Changes is a coalescing wake-up channel for state owners that want to
// tell a single reader "something changed" without blocking. Notifications
// sent before the reader catches up collapse into one.
type Changes struct {
	ch chan struct{}
}

// NewChanges returns an empty Changes.
func NewChanges() *Changes {
	return &Changes{ch: make(chan struct{}, 1)}
}

// Notify marks a change. It never blocks.
func (c *Changes) Notify() {
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

// C returns the channel to receive change marks from.
func (c *Changes) C() <-chan struct{} {
	return c.ch
}
