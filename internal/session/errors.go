package session

import "errors"

// ErrInvalidState is returned when a session carries a state outside the enumeration.
var ErrInvalidState = errors.New("session: invalid dialog state")
