// Package ingest consumes the inbound event stream: it classifies each event,
// serializes processing per user and isolates failures per event.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/commands"
)

// Defaults applied by New.
const (
	DefaultWorkers        = 16
	DefaultMaxPending     = 32
	DefaultHandlerTimeout = 30 * time.Second
)

// State is the loop lifecycle state.
type State int32

const (
	// Stopped means the loop is not accepting events.
	Stopped State = iota
	// Running means the loop is accepting events.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Route is the destination of a classified event.
type Route int

const (
	RouteDrop Route = iota
	RouteCommand
	RouteDialog
	RouteAlbum
)

func (r Route) String() string {
	switch r {
	case RouteCommand:
		return "command"
	case RouteDialog:
		return "dialog"
	case RouteAlbum:
		return "album"
	default:
		return "drop"
	}
}

// Classify picks the route for ev. Text starting with the command marker
// goes to the command router, other text and callbacks to the dialog, photos
// to the album. Everything else, and events without a chat, is dropped.
func Classify(ev chat.Event) Route {
	if ev == nil || ev.Chat() == 0 {
		return RouteDrop
	}
	switch e := ev.(type) {
	case chat.TextMessage:
		if commands.IsCommand(e.Text) {
			return RouteCommand
		}
		return RouteDialog
	case chat.Callback:
		return RouteDialog
	case chat.Photo:
		return RouteAlbum
	default:
		return RouteDrop
	}
}

// CommandRouter handles command messages.
type CommandRouter interface {
	Route(ctx context.Context, ch chat.Channel, ev chat.TextMessage) error
}

// DialogDispatcher handles dialog turns.
type DialogDispatcher interface {
	Dispatch(ctx context.Context, ch chat.Channel, ev chat.Event) error
}

// PhotoHandler handles photo events.
type PhotoHandler interface {
	Add(ctx context.Context, ch chat.Channel, ev chat.Photo) error
}

// Options configures a Loop.
type Options struct {
	Channel  chat.Channel
	Commands CommandRouter
	Dialog   DialogDispatcher
	// Album is optional; photos are dropped without it.
	Album PhotoHandler

	Workers        int
	MaxPending     int
	HandlerTimeout time.Duration

	// Filters run on arrival, before the event is queued.
	Filters []Filter
	// Middleware wraps routing, inside logging and panic recovery.
	Middleware []Middleware
}

// Loop is the event ingestion loop. A Loop runs once.
type Loop struct {
	opts    Options
	serial  *Serializer
	handler HandlerFunc
	state   atomic.Int32
	used    atomic.Bool
}

// New validates opts and builds a Loop.
func New(opts Options) (*Loop, error) {
	if opts.Channel == nil || opts.Commands == nil || opts.Dialog == nil {
		return nil, errors.New("ingest: channel, command router and dialog dispatcher are required")
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	l := &Loop{
		opts:   opts,
		serial: NewSerializer(opts.Workers, opts.MaxPending),
	}
	mws := []Middleware{WithTimeout(opts.HandlerTimeout), Logging(l.classify), Recover}
	mws = append(mws, opts.Middleware...)
	l.handler = Chain(l.route, mws...)
	return l, nil
}

// State reports whether the loop is accepting events.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) classify(ev chat.Event) Route {
	r := Classify(ev)
	if r == RouteAlbum && l.opts.Album == nil {
		return RouteDrop
	}
	return r
}

// Run consumes events until ctx is cancelled or events is closed, then stops
// accepting and waits for queued and in-flight events to finish.
func (l *Loop) Run(ctx context.Context, events <-chan chat.Event) error {
	if !l.used.CompareAndSwap(false, true) {
		return ErrRunning
	}
	l.state.Store(int32(Running))
	logger.Info(ctx, "ingest", "ingest.start")
	defer func() {
		l.state.Store(int32(Stopped))
		l.serial.Close()
		logger.Info(context.WithoutCancel(ctx), "ingest", "ingest.stop")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			l.Submit(ctx, ev)
		}
	}
}

// Submit classifies ev and queues it behind earlier events of the same chat.
// It reports whether the event was accepted.
func (l *Loop) Submit(ctx context.Context, ev chat.Event) bool {
	route := l.classify(ev)
	if route == RouteDrop {
		if ev != nil && logger.ShouldSampleDebug() {
			logger.Debug(ctx, "ingest", "event.dropped",
				slog.String("kind", chat.Kind(ev)),
				slog.Int("update_id", ev.Update()),
				slog.String("reason", "unclassified"),
			)
		}
		return false
	}
	for _, f := range l.opts.Filters {
		if f != nil && !f(ctx, ev) {
			return false
		}
	}
	err := l.serial.Submit(ev.Chat(), func() {
		_ = l.handler(ctx, ev)
	})
	if err != nil {
		logger.Warn(ctx, "ingest", "event.dropped",
			slog.String("kind", chat.Kind(ev)),
			slog.Int("update_id", ev.Update()),
			slog.Int64("chat_id", ev.Chat()),
			slog.String("reason", err.Error()),
		)
		return false
	}
	return true
}

func (l *Loop) route(ctx context.Context, ev chat.Event) error {
	switch l.classify(ev) {
	case RouteCommand:
		return l.opts.Commands.Route(ctx, l.opts.Channel, ev.(chat.TextMessage))
	case RouteDialog:
		return l.opts.Dialog.Dispatch(ctx, l.opts.Channel, ev)
	case RouteAlbum:
		return l.opts.Album.Add(ctx, l.opts.Channel, ev.(chat.Photo))
	default:
		return nil
	}
}
