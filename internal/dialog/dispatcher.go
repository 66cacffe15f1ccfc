package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

// ErrNoChat is returned for events that carry no chat identity.
var ErrNoChat = errors.New("dialog: event has no chat id")

// Dispatcher runs the step bound to a session's state and persists the result.
type Dispatcher struct {
	store session.Store
	table *Table
	start Step
}

// NewDispatcher requires a step for WaitingForName, which doubles as the
// fallback for states without a step.
func NewDispatcher(store session.Store, table *Table) (*Dispatcher, error) {
	if store == nil || table == nil {
		return nil, errors.New("dialog: store and table are required")
	}
	start, ok := table.Lookup(session.WaitingForName)
	if !ok {
		return nil, fmt.Errorf("dialog: no start step registered for %s", session.WaitingForName)
	}
	return &Dispatcher{store: store, table: table, start: start}, nil
}

// Dispatch handles one dialog turn. The session is stored only when the step
// succeeds, so a failed turn leaves the stored state untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, ch chat.Channel, ev chat.Event) error {
	chatID := ev.Chat()
	if chatID == 0 {
		return ErrNoChat
	}
	s, err := d.store.GetOrCreate(ctx, chatID)
	if err != nil {
		return fmt.Errorf("dialog: load session %d: %w", chatID, err)
	}

	from := s.State
	step, ok := d.table.Lookup(from)
	if !ok {
		// Resting states and unknown states restart onboarding at the name step.
		logger.Info(ctx, "dialog", "dialog.fallback",
			slog.String("state", from.String()),
		)
		step = d.start
	}

	if err := step.Handle(ctx, ch, s, ev); err != nil {
		return fmt.Errorf("dialog: step %s: %w", from, err)
	}
	if !s.State.Valid() {
		return fmt.Errorf("dialog: step %s left state %d: %w", from, int(s.State), session.ErrInvalidState)
	}
	if err := d.store.Update(ctx, s); err != nil {
		return fmt.Errorf("dialog: save session %d: %w", chatID, err)
	}

	if from != s.State {
		logger.Debug(ctx, "dialog", "dialog.transition",
			slog.String("from", from.String()),
			slog.String("to", s.State.String()),
		)
	}
	return nil
}
