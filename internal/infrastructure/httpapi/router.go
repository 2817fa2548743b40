// Package httpapi exposes the operator control surface over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"DealScanner/internal/control"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/scanner"
)

// Controller is what the handlers drive.
type Controller interface {
	Status() control.Status
	Health(ctx context.Context) (control.Health, error)
	SetScraping(on bool) error
	SetSourceEnabled(name string, on bool) error
	CollectNow(ctx context.Context) (control.CollectResult, error)
	EnableJob(ctx context.Context, id string) error
	DisableJob(ctx context.Context, id string) error
	TriggerJob(ctx context.Context, id string) error
}

type handler struct {
	ctrl Controller
	log  *slog.Logger
}

// NewRouter builds the operator API. metrics may be nil.
func NewRouter(ctrl Controller, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &handler{ctrl: ctrl, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/status", h.status)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Post("/scraping/on", h.scraping(true))
	r.Post("/scraping/off", h.scraping(false))
	r.Post("/collect", h.collect)

	r.Route("/sources/{name}", func(r chi.Router) {
		r.Post("/enable", h.source(true))
		r.Post("/disable", h.source(false))
	})

	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Post("/enable", h.job(ctrlEnable))
		r.Post("/disable", h.job(ctrlDisable))
		r.Post("/trigger", h.job(ctrlTrigger))
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	report, err := h.ctrl.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) scraping(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := h.ctrl.SetScraping(on); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		h.log.Info("scraping switch changed", "enabled", on)
		writeJSON(w, http.StatusOK, map[string]bool{"scraping_allowed": on})
	}
}

func (h *handler) source(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := h.ctrl.SetSourceEnabled(name, on); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		h.log.Info("source toggled", "source", name, "enabled", on)
		writeJSON(w, http.StatusOK, map[string]any{"source": name, "enabled": on})
	}
}

func (h *handler) collect(w http.ResponseWriter, r *http.Request) {
	result, err := h.ctrl.CollectNow(r.Context())
	if err != nil {
		h.log.Warn("forced collection failed", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type jobAction int

const (
	ctrlEnable jobAction = iota
	ctrlDisable
	ctrlTrigger
)

func (h *handler) job(action jobAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var err error
		switch action {
		case ctrlEnable:
			err = h.ctrl.EnableJob(r.Context(), id)
		case ctrlDisable:
			err = h.ctrl.DisableJob(r.Context(), id)
		case ctrlTrigger:
			err = h.ctrl.TriggerJob(r.Context(), id)
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job": id})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scanner.ErrUnknownSource), errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrMissingCredentials), errors.Is(err, control.ErrEnvironmentLocked):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
