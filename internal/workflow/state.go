// File: internal/workflow/state.go
package workflow

import "fmt"

// State is the session's progress marker. States are ordered: a session that
// has reached a state has also reached every state before it.
type State int

const (
	Uninitialized State = iota
	BrowserReady
	PageLoaded
	ContentAnalyzed
	SelectorAvailable
)

// AllStates lists every state in order.
var AllStates = []State{Uninitialized, BrowserReady, PageLoaded, ContentAnalyzed, SelectorAvailable}

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case BrowserReady:
		return "browser_ready"
	case PageLoaded:
		return "page_loaded"
	case ContentAnalyzed:
		return "content_analyzed"
	case SelectorAvailable:
		return "selector_available"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reached reports whether s is at or past target.
func (s State) Reached(target State) bool {
	return s >= target
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= Uninitialized && s <= SelectorAvailable
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid workflow state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for _, s := range AllStates {
		if s.String() == name {
			return s, nil
		}
	}
	return Uninitialized, fmt.Errorf("unknown workflow state %q", name)
}
