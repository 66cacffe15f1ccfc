package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/datingbot/core/config"
	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/core/netutil"
	tgsender "github.com/m3rciful/datingbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultUpdatesBuffer = 100

// ConsumeFunc receives every inbound update until the channel is closed.
// It should return once updates is closed and its own work has drained.
type ConsumeFunc func(ctx context.Context, rt Runtime, updates <-chan tele.Update) error

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config

	// Commands are published to the Telegram command menu at startup.
	Commands []tele.Command
	// Consume owns update handling. Telebot's own handler routing is bypassed.
	Consume ConsumeFunc

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	UpdatesBuffer         int
	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks and the consumer.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Consume == nil {
		return fmt.Errorf("telegram: Consume is required")
	}

	cfg := opts.Config
	bufSize := opts.UpdatesBuffer
	if bufSize <= 0 {
		bufSize = defaultUpdatesBuffer
	}
	updates := make(chan tele.Update, bufSize)

	base := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})
	poller := tele.NewMiddlewarePoller(base, forwardTo(ctx, updates))

	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: netutil.NewHTTPClient(netutil.ClientOptions{}),
		OnError: func(err error, _ tele.Context) {
			logger.TG.Error("telebot error",
				slog.String("event", "tg.error"),
				slog.String("err", err.Error()),
			)
		},
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(settings)
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	buildTook := time.Since(buildStart)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}

	rt := Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
	}

	switch p := base.(type) {
	case *tele.Webhook:
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	case *tele.LongPoller:
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)

		if !opts.DisableWebhookCleanup {
			if err := bot.RemoveWebhook(false); err != nil {
				logger.TG.Warn("failed to delete webhook",
					slog.String("event", "delete_webhook"),
					slog.String("err", err.Error()),
				)
			} else {
				logger.TG.Info("webhook deleted",
					slog.String("event", "delete_webhook"),
				)
			}
		}
	}

	setCommands(bot, opts.Commands)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- opts.Consume(ctx, rt, updates)
	}()

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	// The poller has returned, nothing writes to updates any more.
	close(updates)
	consumeErr := <-consumeDone

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	dispatcher.Close()

	switch {
	case stopErr != nil:
		return stopErr
	case consumeErr != nil && !errors.Is(consumeErr, context.Canceled):
		return consumeErr
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	}
	return nil
}

// forwardTo builds a poller filter that hands every update to dest and keeps
// it away from telebot's own handler routing. Updates arriving after ctx is
// done are dropped so the poller can stop.
func forwardTo(ctx context.Context, dest chan<- tele.Update) func(*tele.Update) bool {
	return func(u *tele.Update) bool {
		if u == nil {
			return false
		}
		select {
		case dest <- *u:
		case <-ctx.Done():
			logger.TG.Debug("update dropped on shutdown",
				slog.String("event", "update.drop"),
				slog.Int("update_id", u.ID),
			)
		}
		return false
	}
}

func setCommands(bot *tele.Bot, commands []tele.Command) {
	if len(commands) == 0 {
		return
	}
	if err := bot.SetCommands(commands); err != nil {
		logger.TWire.Error("set commands failed",
			slog.String("event", "register.commands.set_failed"),
			slog.String("err", err.Error()),
		)
		return
	}
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, "/"+strings.TrimPrefix(c.Text, "/"))
	}
	preview, truncated := logger.SummarizeStrings(names, 8)
	logger.TWire.Info("commands published",
		slog.String("event", "register.commands.set"),
		slog.Int("count", len(commands)),
		slog.String("names", preview),
		slog.Bool("truncated", truncated),
	)
}
