package session

import (
	"fmt"
	"strings"
)

// DialogState identifies the onboarding step a session is in.
type DialogState int

// The zero value is None so a freshly decoded session without state is pre-onboarding.
const (
	None DialogState = iota
	WaitingForName
	WaitingForAge
	WaitingForPlace
	WaitingForAddDescription
	WaitingForDescription
	Done
)

var stateNames = [...]string{
	None:                     "none",
	WaitingForName:           "waiting_for_name",
	WaitingForAge:            "waiting_for_age",
	WaitingForPlace:          "waiting_for_place",
	WaitingForAddDescription: "waiting_for_add_description",
	WaitingForDescription:    "waiting_for_description",
	Done:                     "done",
}

// States lists every state in declaration order.
func States() []DialogState {
	out := make([]DialogState, len(stateNames))
	for i := range stateNames {
		out[i] = DialogState(i)
	}
	return out
}

// Valid reports whether s is one of the declared states.
func (s DialogState) Valid() bool {
	return s >= None && int(s) < len(stateNames)
}

// Resting reports whether s has no dialog step bound to it.
func (s DialogState) Resting() bool {
	return s == None || s == Done
}

func (s DialogState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("DialogState(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState converts the storage form back into a DialogState.
func ParseState(raw string) (DialogState, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range stateNames {
		if name == key {
			return DialogState(i), nil
		}
	}
	return None, fmt.Errorf("session: unknown dialog state %q", raw)
}

// MarshalText encodes the state as its snake_case name.
func (s DialogState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("session: invalid dialog state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a snake_case state name.
func (s *DialogState) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
