package ingest

import (
	"context"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
)

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev chat.Event) error

// Middleware decorates a HandlerFunc.
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies mws so that the first one is the outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Recover turns a handler panic into a *PanicError so one bad event cannot
// stop the loop.
func Recover(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev chat.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "ingest", "event.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = &PanicError{Value: r}
			}
		}()
		return next(ctx, ev)
	}
}

// Logging attaches correlation fields to ctx and logs one summary line per
// event. Failures are logged here and not returned, so callers only see nil.
func Logging(route func(chat.Event) Route) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev chat.Event) error {
			start := time.Now()
			chatID := ev.Chat()
			senderID := senderOf(ev)
			handler := route(ev).String()

			ctx = logger.WithRID(ctx, logger.BuildRID(ev.Update(), chatID, senderID))
			ctx = logger.WithUpdateMeta(ctx, ev.Update(), senderID, chatID)
			ctx = logger.WithHandler(ctx, handler)
			ctx = logger.WithLogger(ctx, logger.Component("ingest"))

			if logger.ShouldSampleDebug() {
				attrs := []slog.Attr{slog.String("kind", chat.Kind(ev))}
				if p := payloadOf(ev); p != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(p, 256)))
				}
				logger.LogEvent(ctx, nil, slog.LevelDebug, "event.received", attrs...)
			}

			err := next(ctx, ev)

			attrs := []slog.Attr{
				slog.String("kind", chat.Kind(ev)),
				slog.Duration("duration", logger.Took(start)),
			}
			if err != nil {
				attrs = append(attrs,
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
					slog.String("err_code", deriveErrorCode(err)),
				)
				logger.LogEvent(ctx, nil, slog.LevelWarn, "event.failed", attrs...)
				return nil
			}
			attrs = append(attrs, slog.String("status", "ok"))
			logger.LogEvent(ctx, nil, slog.LevelInfo, "event.handled", attrs...)
			return nil
		}
	}
}

// WithTimeout bounds every event by d. The context is detached from the
// caller's cancellation so a stop signal lets in-flight events finish.
func WithTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev chat.Event) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d)
			defer cancel()
			return next(ctx, ev)
		}
	}
}

func senderOf(ev chat.Event) int64 {
	switch e := ev.(type) {
	case chat.TextMessage:
		return e.SenderID
	case chat.Callback:
		return e.FromID
	case chat.Photo:
		return e.SenderID
	default:
		return 0
	}
}

func payloadOf(ev chat.Event) string {
	switch e := ev.(type) {
	case chat.TextMessage:
		return e.Text
	case chat.Callback:
		if e.Payload != "" {
			return e.Data + "|" + e.Payload
		}
		return e.Data
	case chat.Photo:
		return e.Caption
	default:
		return ""
	}
}

// deriveErrorCode prefers a Code() method anywhere in the chain and falls
// back to the type name of the innermost error.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	root := err
	for e := err; e != nil; e = unwrapOne(e) {
		if c, ok := e.(coder); ok {
			if code := strings.TrimSpace(c.Code()); code != "" {
				return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
			}
		}
		root = e
	}
	t := reflect.TypeOf(root)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}

func unwrapOne(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		if errs := e.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}
