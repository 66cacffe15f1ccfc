package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
)

// Filter decides at arrival time whether an event is processed at all.
type Filter func(ctx context.Context, ev chat.Event) bool

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists event kinds (see chat.Kind) that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited func(ctx context.Context, ev chat.Event)
	now       func() time.Time
}

// RateLimit returns a filter that enforces a minimum interval between events
// from the same chat.
func RateLimit(opts RateLimitOptions) Filter {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, ev chat.Event) bool {
		id := ev.Chat()
		if id == 0 || opts.Interval <= 0 {
			return true
		}
		if _, skip := opts.Exclude[chat.Kind(ev)]; skip {
			return true
		}

		t := now()
		lastSeenMu.Lock()
		if last, ok := lastSeen[id]; ok && t.Sub(last) < opts.Interval {
			lastSeenMu.Unlock()
			logger.Warn(ctx, "ingest", "event.rate_limited",
				slog.Int64("chat_id", id),
				slog.String("kind", chat.Kind(ev)),
			)
			if opts.OnLimited != nil {
				opts.OnLimited(ctx, ev)
			}
			return false
		}
		lastSeen[id] = t
		if len(lastSeen) > 4096 {
			for k, v := range lastSeen {
				if t.Sub(v) >= opts.Interval {
					delete(lastSeen, k)
				}
			}
		}
		lastSeenMu.Unlock()
		return true
	}
}
