package model

// ConnState is the push channel connection state.
type ConnState int

const (
	// ConnClosedNormal means no connection and no reconnect pending. It is
	// also the state before the first connect.
	ConnClosedNormal ConnState = iota
	ConnConnecting
	ConnOpen
	// ConnClosedAbnormal means the connection dropped and a reconnect
	// timer is armed.
	ConnClosedAbnormal
)

// String returns the state name used in logs and the header.
func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosedNormal:
		return "closed-normal"
	case ConnClosedAbnormal:
		return "closed-abnormal"
	default:
		return "unknown"
	}
}
