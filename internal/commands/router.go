package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

// ErrNotCommand is returned by Route for text without the command marker.
var ErrNotCommand = errors.New("commands: not a command")

// Router resolves command messages against a Registry.
type Router struct {
	registry *Registry
	store    session.Store
}

// NewRouter creates a Router.
func NewRouter(registry *Registry, store session.Store) (*Router, error) {
	if registry == nil || store == nil {
		return nil, errors.New("commands: registry and store are required")
	}
	return &Router{registry: registry, store: store}, nil
}

// Route runs the command named by ev. Unknown commands get a reply and leave
// the store untouched. The session is stored only when the handler succeeds.
func (r *Router) Route(ctx context.Context, ch chat.Channel, ev chat.TextMessage) error {
	token, args, ok := ParseCommand(ev.Text)
	if !ok {
		return ErrNotCommand
	}
	cmd, found := r.registry.Lookup(token)
	if !found {
		logger.Debug(ctx, "commands", "command.unknown",
			slog.String("command", logger.SanitizeLimit(token, 32)),
		)
		return ch.SendText(ctx, ev.ChatID, fmt.Sprintf("Unknown command: /%s", token))
	}

	s, err := r.store.GetOrCreate(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("commands: load session %d: %w", ev.ChatID, err)
	}
	from := s.State
	inv := Invocation{Name: cmd.Name, Args: args, Event: ev}
	if err := cmd.Handler.Handle(ctx, ch, s, inv); err != nil {
		return fmt.Errorf("commands: /%s: %w", cmd.Name, err)
	}
	if !s.State.Valid() {
		return fmt.Errorf("commands: /%s left state %d: %w", cmd.Name, int(s.State), session.ErrInvalidState)
	}
	if err := r.store.Update(ctx, s); err != nil {
		return fmt.Errorf("commands: save session %d: %w", ev.ChatID, err)
	}
	logger.Debug(ctx, "commands", "command.handled",
		slog.String("command", cmd.Name),
		slog.String("from", from.String()),
		slog.String("to", s.State.String()),
	)
	return nil
}
