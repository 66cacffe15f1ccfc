package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

// contextHandler decorates a slog JSON/Text handler with correlation fields
// carried in the context (rid, update/chat/user ids, handler name).
type contextHandler struct {
	base         slog.Handler
	format       logFormat
	hasComponent bool
}

func newContextHandler(format logFormat, w io.Writer, level slog.Leveler) *contextHandler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	var base slog.Handler
	if format == formatKV {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return &contextHandler{base: base, format: format}
}

// Enabled reports whether the wrapped handler accepts the level.
func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle enriches the record with context fields and passes it on.
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	present := make(map[string]struct{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = struct{}{}
		return true
	})
	has := func(key string) bool {
		_, ok := present[key]
		return ok
	}

	out := r.Clone()
	var extra []slog.Attr
	if !has("event") {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		extra = append(extra, slog.String("event", event))
	}
	if !h.hasComponent && !has("component") {
		extra = append(extra, slog.String("component", "app"))
	}
	if rid := RIDFrom(ctx); rid != "" && !has("rid") {
		compact := CompactRID(rid)
		extra = append(extra, slog.String("rid", compact))
		if h.format == formatJSON && compact != rid {
			extra = append(extra, slog.String("rid_full", rid))
		}
	}
	if id := UpdateIDFrom(ctx); id != 0 && !has("update_id") {
		extra = append(extra, slog.Int("update_id", id))
	}
	if id := ChatIDFrom(ctx); id != 0 && !has("chat_id") {
		extra = append(extra, slog.Int64("chat_id", id))
	}
	if id := UserIDFrom(ctx); id != 0 && !has("user_id") {
		extra = append(extra, slog.Int64("user_id", id))
	}
	if name := HandlerFrom(ctx); name != "" && !has("handler") {
		extra = append(extra, slog.String("handler", name))
	}
	out.AddAttrs(extra...)
	return h.base.Handle(ctx, out)
}

// WithAttrs returns a handler whose wrapped handler carries attrs.
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "component" {
			clone.hasComponent = true
		}
	}
	return &clone
}

// WithGroup returns a handler with an additional group prefix.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.base = h.base.WithGroup(name)
	return &clone
}

// replaceAttr renames built-in keys, drops empty values and reports durations in milliseconds.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch a.Key {
		case slog.TimeKey:
			return slog.String("ts", a.Value.Time().UTC().Truncate(time.Millisecond).Format(timeFormatMillis))
		case slog.MessageKey:
			if a.Value.String() == "" {
				return slog.Attr{}
			}
			return a
		case slog.LevelKey:
			return a
		}
	}
	switch a.Value.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(a.Value.String())
		if s == "" {
			return slog.Attr{}
		}
		return slog.String(a.Key, s)
	case slog.KindDuration:
		return slog.Int64(durationKey(a.Key), RoundMS(a.Value.Duration()).Milliseconds())
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, err.Error())
		}
	}
	return a
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return strings.TrimSuffix(key, "_duration") + "_duration_ms"
	case !strings.HasSuffix(key, "_ms"):
		return key + "_ms"
	}
	return key
}
