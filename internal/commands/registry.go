// Package commands routes slash commands. Commands pre-empt the dialog: a
// command event never reaches the dialog dispatcher.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

// Invocation is a parsed command message.
type Invocation struct {
	// Name is the canonical command name the token resolved to.
	Name  string
	Args  []string
	Event chat.TextMessage
}

// Handler runs a command against the caller's session.
type Handler interface {
	Handle(ctx context.Context, ch chat.Channel, s *session.Session, inv Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ch chat.Channel, s *session.Session, inv Invocation) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ch chat.Channel, s *session.Session, inv Invocation) error {
	return f(ctx, ch, s, inv)
}

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Name        string
	Description string
	Hidden      bool
	Aliases     []string
	Handler     Handler
}

// Registry holds the commands known to the router. Names and aliases are
// matched case-insensitively and must be unique.
type Registry struct {
	byToken  map[string]*Command
	commands []*Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byToken: make(map[string]*Command)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}

// Register adds cmd. An empty name, a missing handler or a name or alias
// already taken is an error.
func (r *Registry) Register(cmd Command) error {
	name := normalizeName(cmd.Name)
	if name == "" || cmd.Handler == nil {
		return errors.New("commands: command needs a name and a handler")
	}
	if !cmd.Hidden && strings.TrimSpace(cmd.Description) == "" {
		return fmt.Errorf("commands: /%s needs a description", name)
	}
	tokens := []string{name}
	for _, alias := range cmd.Aliases {
		tokens = append(tokens, normalizeName(alias))
	}
	for _, tok := range tokens {
		if tok == "" {
			return fmt.Errorf("commands: /%s has an empty alias", name)
		}
		if _, exists := r.byToken[tok]; exists {
			return fmt.Errorf("commands: /%s is already registered", tok)
		}
	}

	stored := cmd
	stored.Name = name
	stored.Aliases = tokens[1:]
	for _, tok := range tokens {
		r.byToken[tok] = &stored
	}
	r.commands = append(r.commands, &stored)
	logger.TWire.Debug("register command",
		slog.String("event", "register.command"),
		slog.String("name", name),
		slog.Int("aliases", len(stored.Aliases)),
	)
	return nil
}

// Lookup resolves a token, with or without the leading slash, to its command.
func (r *Registry) Lookup(token string) (Command, bool) {
	cmd, ok := r.byToken[normalizeName(token)]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// List returns the registered commands sorted by name, optionally without hidden ones.
func (r *Registry) List(visibleOnly bool) []Command {
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if visibleOnly && cmd.Hidden {
			continue
		}
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseCommand splits a command message into its case-folded token and
// positional arguments. The token has the slash and any @bot suffix removed.
// ok is false when text is not a command.
func ParseCommand(text string) (token string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	token = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(token, '@'); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(token), fields[1:], true
}

// IsCommand reports whether text starts with the command marker.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}
