package model

// LoadState is the observable fetch state of a list surface.
type LoadState int

const (
	// LoadIdle means nothing has been fetched yet.
	LoadIdle LoadState = iota
	// LoadLoading is entered on every fetch.
	LoadLoading
	// LoadReady means the last applied fetch succeeded.
	LoadReady
	// LoadErrored means the last applied fetch failed.
	LoadErrored
)

// String returns the state name.
func (s LoadState) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadLoading:
		return "loading"
	case LoadReady:
		return "ready"
	case LoadErrored:
		return "errored"
	default:
		return "unknown"
	}
}
