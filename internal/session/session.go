// Package session holds the per-user onboarding record and the stores that persist it.
package session

import (
	"context"
	"slices"
)

// Location is a geocoded point. Latitude and longitude are always set together.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session is the per-user onboarding record keyed by chat id.
type Session struct {
	ID          int64       `json:"id"`
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Age         *int        `json:"age,omitempty"`
	Location    *Location   `json:"location,omitempty"`
	PictureRefs []string    `json:"picture_refs,omitempty"`
	State       DialogState `json:"state"`
}

// New returns a pre-onboarding session for id.
func New(id int64) *Session {
	return &Session{ID: id, State: None}
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Name != nil {
		v := *s.Name
		out.Name = &v
	}
	if s.Description != nil {
		v := *s.Description
		out.Description = &v
	}
	if s.Age != nil {
		v := *s.Age
		out.Age = &v
	}
	if s.Location != nil {
		v := *s.Location
		out.Location = &v
	}
	out.PictureRefs = slices.Clone(s.PictureRefs)
	return &out
}

// Restart clears the onboarding answers that a start or reset command discards
// and moves the session back to the name step.
func (s *Session) Restart() {
	s.Name = nil
	s.Age = nil
	s.State = WaitingForName
}

// Onboarded reports whether the user already introduced themselves.
func (s *Session) Onboarded() bool {
	return s.Name != nil && *s.Name != ""
}

// Store persists sessions. Implementations need no per-id locking: callers
// serialize turns for the same id.
type Store interface {
	// GetOrCreate returns the stored session, creating and persisting a None session on first use.
	GetOrCreate(ctx context.Context, id int64) (*Session, error)
	// Update upserts s by id.
	Update(ctx context.Context, s *Session) error
}

// Deref returns the pointed-to value or the zero value.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
