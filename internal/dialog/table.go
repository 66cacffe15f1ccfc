// Package dialog implements the onboarding state machine: one step per
// non-resting session state and a dispatcher that runs the step bound to the
// session's current state.
package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

// Step advances a session bound to one state. Each call sends exactly one
// reply and leaves s.State at its successor, or unchanged when the input is
// rejected.
type Step interface {
	Handle(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error

// Handle calls f.
func (f StepFunc) Handle(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	return f(ctx, ch, s, ev)
}

// Table maps dialog states to steps. It is built once at startup and read-only afterwards.
type Table struct {
	steps map[session.DialogState]Step
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{steps: make(map[session.DialogState]Step)}
}

// Register binds step to state. Binding a resting or unknown state, or
// binding one state twice, is an error.
func (t *Table) Register(state session.DialogState, step Step) error {
	if step == nil {
		return fmt.Errorf("dialog: nil step for %s", state)
	}
	if !state.Valid() {
		return fmt.Errorf("dialog: register %s: %w", state, session.ErrInvalidState)
	}
	if state.Resting() {
		return fmt.Errorf("dialog: state %s is resting and takes no step", state)
	}
	if _, exists := t.steps[state]; exists {
		return fmt.Errorf("dialog: step already registered for %s", state)
	}
	t.steps[state] = step
	logger.TWire.Debug("register step",
		slog.String("event", "register.step"),
		slog.String("state", state.String()),
	)
	return nil
}

// Lookup returns the step bound to state. A miss is not an error.
func (t *Table) Lookup(state session.DialogState) (Step, bool) {
	step, ok := t.steps[state]
	return step, ok
}

// Validate reports the first non-resting state without a step.
func (t *Table) Validate() error {
	for _, state := range session.States() {
		if state.Resting() {
			continue
		}
		if _, ok := t.steps[state]; !ok {
			return fmt.Errorf("dialog: no step registered for %s", state)
		}
	}
	return nil
}

// NewDefaultTable registers the onboarding steps and validates the result.
func NewDefaultTable(geo Geocoder) (*Table, error) {
	t := NewTable()
	for _, reg := range []struct {
		state session.DialogState
		step  Step
	}{
		{session.WaitingForName, StepFunc(askName)},
		{session.WaitingForAge, StepFunc(askAge)},
		{session.WaitingForPlace, NewPlaceStep(geo)},
		{session.WaitingForAddDescription, StepFunc(askAddDescription)},
		{session.WaitingForDescription, StepFunc(askDescription)},
	} {
		if err := t.Register(reg.state, reg.step); err != nil {
			return nil, err
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
