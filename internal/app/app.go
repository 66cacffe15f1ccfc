// Package app wires the dating profile bot: configuration, stores, the dialog
// engine, commands and the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/datingbot/core/bootstrap"
	corecmd "github.com/m3rciful/datingbot/core/cmd"
	coreconfig "github.com/m3rciful/datingbot/core/config"
	"github.com/m3rciful/datingbot/core/logger"
	coretelegram "github.com/m3rciful/datingbot/core/telegram"
	tgsender "github.com/m3rciful/datingbot/core/telegram/sender"
	"github.com/m3rciful/datingbot/internal/album"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/commands"
	"github.com/m3rciful/datingbot/internal/dialog"
	"github.com/m3rciful/datingbot/internal/geo"
	"github.com/m3rciful/datingbot/internal/ingest"
	"github.com/m3rciful/datingbot/internal/photos"
	"github.com/m3rciful/datingbot/internal/records"
	"github.com/m3rciful/datingbot/internal/session"
	transport "github.com/m3rciful/datingbot/internal/transport/telegram"
	"github.com/m3rciful/datingbot/migrations"
)

// Options overrides infrastructure pieces, mostly for tests.
type Options struct {
	LoggerInit func(*coreconfig.Config) error
	// Geocoder replaces the Nominatim client.
	Geocoder dialog.Geocoder
}

// App holds the wired components of the bot.
type App struct {
	cfg *Config

	boot     *bootstrap.Result
	sessions session.Store
	photos   photos.Store
	bucket   *photos.MinioStore
	closers  []io.Closer

	registry *commands.Registry
	commands *commands.Router
	dialog   *dialog.Dispatcher
}

// Bootstrap implements the signature expected by core/cmd.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(cfg, Options{})
}

// New builds the application from cfg.
func New(cfg *Config, opts Options) (a *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a = &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	bootOpts := bootstrap.Options{Config: &cfg.Config, LoggerInit: opts.LoggerInit}
	if cfg.Session.Backend == SessionSQL {
		bootOpts.Database = &cfg.Database
		bootOpts.Migrations = migrations.FS
	}
	a.boot, err = bootstrap.Run(bootOpts)
	if err != nil {
		return nil, err
	}

	if a.sessions, err = a.openSessions(); err != nil {
		return nil, err
	}
	if a.photos, err = a.openPhotos(); err != nil {
		return nil, err
	}

	geocoder := opts.Geocoder
	if geocoder == nil {
		geocoder, err = geo.New(geo.Options{
			BaseURL:   cfg.Geo.BaseURL,
			UserAgent: cfg.Geo.UserAgent,
			Timeout:   time.Duration(cfg.Geo.TimeoutSeconds) * time.Second,
			Rate:      cfg.Geo.Rate,
		})
		if err != nil {
			return nil, err
		}
	}

	table, err := dialog.NewDefaultTable(geocoder)
	if err != nil {
		return nil, err
	}
	if a.dialog, err = dialog.NewDispatcher(a.sessions, table); err != nil {
		return nil, err
	}

	a.registry = commands.NewRegistry()
	if err = commands.Builtins(a.registry, a.photos); err != nil {
		return nil, err
	}
	if a.commands, err = commands.NewRouter(a.registry, a.sessions); err != nil {
		return nil, err
	}

	for _, w := range cfg.Warnings() {
		logger.TWire.Warn("config warning",
			slog.String("event", "config.warning"),
			slog.String("detail", w),
		)
	}

	logger.TWire.Info("app wired",
		slog.String("event", "app.wired"),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("photos_backend", cfg.Photos.Backend),
		slog.Int("commands", len(a.registry.List(false))),
	)
	return a, nil
}

func (a *App) openSessions() (session.Store, error) {
	cfg := a.cfg
	switch cfg.Session.Backend {
	case SessionBadger:
		st, err := session.OpenBadger(cfg.Session.BadgerDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		return st, nil
	case SessionSQL:
		return session.NewRecordStore(records.NewSQLStore(a.boot.DB)), nil
	case SessionRemote:
		client, err := records.NewHTTPClient(records.HTTPOptions{
			BaseURL: cfg.Records.BaseURL,
			Timeout: cfg.RecordsTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return session.NewRecordStore(client), nil
	case SessionMemory, "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("app: unknown session backend %q", cfg.Session.Backend)
	}
}

func (a *App) openPhotos() (photos.Store, error) {
	if a.cfg.Photos.Backend != PhotosMinio {
		return photos.NewMemoryStore(), nil
	}
	st, err := photos.NewMinioStore(a.cfg.Photos.Minio)
	if err != nil {
		return nil, err
	}
	a.bucket = st
	return st, nil
}

// Close releases stores opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := a.boot.Close(); err != nil {
		errs = append(errs, err)
	}
	a.boot = nil
	return errors.Join(errs...)
}

// MenuCommands lists the visible commands for the Telegram command menu.
func (a *App) MenuCommands() []tele.Command {
	visible := a.registry.List(true)
	out := make([]tele.Command, 0, len(visible))
	for _, c := range visible {
		out = append(out, tele.Command{Text: "/" + c.Name, Description: c.Description})
	}
	return out
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:   &a.cfg.Config,
		Commands: a.MenuCommands(),
		Consume:  a.consume,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
		},
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			if a.bucket == nil {
				return nil
			}
			return a.bucket.EnsureBucket(ctx)
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

func (a *App) consume(ctx context.Context, rt coretelegram.Runtime, updates <-chan tele.Update) error {
	ch, err := transport.NewChannel(rt.Bot, rt.Dispatcher)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ch, ch, transport.Pipe(ctx, updates))
}

// Serve runs the event loop over events, replying through ch and fetching
// photo files from files. It returns once events is closed or ctx is done and
// in-flight events have finished.
func (a *App) Serve(ctx context.Context, ch chat.Channel, files chat.FileSource, events <-chan chat.Event) error {
	alb, err := album.New(a.sessions, a.photos, files, a.cfg.Photos.MaxPictures)
	if err != nil {
		return err
	}
	loop, err := ingest.New(ingest.Options{
		Channel:        ch,
		Commands:       a.commands,
		Dialog:         a.dialog,
		Album:          alb,
		Workers:        a.cfg.Ingest.Workers,
		MaxPending:     a.cfg.Ingest.MaxPending,
		HandlerTimeout: a.cfg.HandlerTimeout(),
		Filters:        []ingest.Filter{ingest.RateLimit(a.cfg.RateLimitOptions())},
	})
	if err != nil {
		return err
	}
	return loop.Run(ctx, events)
}
