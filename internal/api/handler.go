// Package api serves the user record store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/records"
	"github.com/m3rciful/datingbot/internal/session"
)

const maxBodyBytes = 1 << 20

// Store is the persistence the API exposes.
type Store interface {
	List(ctx context.Context) ([]records.Record, error)
	Fetch(ctx context.Context, chatID int64) (*records.Record, error)
	Insert(ctx context.Context, rec records.Record) (*records.Record, bool, error)
	Patch(ctx context.Context, chatID int64, p records.Patch) error
	Delete(ctx context.Context, chatID int64) error
}

// Handler serves the /api/users resource.
type Handler struct {
	store Store
}

// NewHandler creates a Handler backed by store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// NewRouter builds the chi router with global middleware and all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the user routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{chatId}", h.Get)
		r.Patch("/{chatId}", h.Patch)
		r.Delete("/{chatId}", h.Delete)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// List returns every record.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.fail(w, r, "users.list", err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// Get returns one record by chat id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Fetch(r.Context(), chatID)
	if errors.Is(err, records.ErrNotFound) {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.fail(w, r, "users.get", err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

// Create inserts a record. Posting an existing id returns the stored record with 200.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var rec records.Record
	if !decode(w, r, &rec) {
		return
	}
	if rec.State == "" {
		rec.State = session.None.String()
	}
	if err := validateState(rec.State); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := rec.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, created, err := h.store.Insert(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "users.create", err)
		return
	}
	if !created {
		JSON(w, http.StatusOK, stored)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/users/%d", stored.ChatID))
	JSON(w, http.StatusCreated, stored)
}

// Patch applies a partial update.
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	var p records.Patch
	if !decode(w, r, &p) {
		return
	}
	if p.State != nil {
		if err := validateState(*p.State); err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := p.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.Patch(r.Context(), chatID, p)
	if errors.Is(err, records.ErrNotFound) {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.fail(w, r, "users.patch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a record.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	err := h.store.Delete(r.Context(), chatID)
	if errors.Is(err, records.ErrNotFound) {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.fail(w, r, "users.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.API.Error("request failed",
		slog.String("event", event),
		slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
		slog.String("err", err.Error()),
	)
	Error(w, http.StatusInternalServerError, "internal error")
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "chatId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		Error(w, http.StatusBadRequest, "invalid chatId")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func validateState(raw string) error {
	_, err := session.ParseState(raw)
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.API.LogAttrs(r.Context(), level, "http request",
			slog.String("event", "http.request"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}
