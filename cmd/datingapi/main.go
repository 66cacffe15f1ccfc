// Command datingapi serves the user record store over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/m3rciful/datingbot/core/bootstrap"
	corecmd "github.com/m3rciful/datingbot/core/cmd"
	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/api"
	"github.com/m3rciful/datingbot/internal/app"
	"github.com/m3rciful/datingbot/internal/records"
	"github.com/m3rciful/datingbot/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using environment variables")
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfgPath, err := corecmd.ResolveConfigPath("CONFIG_PATH", "config.yaml")
	if err != nil {
		return err
	}
	cfg, err := app.LoadAPIConfig(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:     &cfg.Config,
		Database:   &cfg.Database,
		Migrations: migrations.FS,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := boot.Close(); err != nil {
			logger.API.Error("db close failed", slog.String("event", "db.close"), slog.String("err", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           api.NewRouter(api.NewHandler(records.NewSQLStore(boot.DB))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.API.Info("listening",
			slog.String("event", "api.listen"),
			slog.String("addr", cfg.API.Listen),
			slog.String("driver", cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.API.Info("shutting down", slog.String("event", "api.shutdown"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
