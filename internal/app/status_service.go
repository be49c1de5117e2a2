package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/scheduler"
)

// StatusService serves health checks and a small control API over HTTP.
type StatusService struct {
	cfg     *config.Config
	handler http.Handler
	server  *http.Server
}

// NewStatusService creates a new StatusService.
func NewStatusService(cfg *config.Config, handler http.Handler) *StatusService {
	return &StatusService{
		cfg:     cfg,
		handler: handler,
	}
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		log.Debug().Msg("Status server disabled")
		return
	}

	go s.run(ctx)
}

func (s *StatusService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}

	log.Info().Str("addr", addr).Msg("Starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Status server error")
	}
}

// StatusHandler routes the status and control endpoints.
type StatusHandler struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	library   *pattern.Library
	broadcast string
	ready     func() bool
	router    chi.Router
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Active   *scheduler.Active `json:"active"`
	Devices  []registry.Entry  `json:"devices"`
	Patterns []string          `json:"patterns"`
}

// NewStatusHandler creates the handler. ready may be nil, meaning always ready.
func NewStatusHandler(reg *registry.Registry, sched *scheduler.Scheduler, lib *pattern.Library, broadcast string, ready func() bool) *StatusHandler {
	h := &StatusHandler{
		registry:  reg,
		scheduler: sched,
		library:   lib,
		broadcast: broadcast,
		ready:     ready,
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/status", h.handleStatus)
	r.Route("/patterns", func(r chi.Router) {
		r.Post("/stop", h.handleStop)
		r.Post("/{name}/start", h.handleStart)
	})
	r.Route("/devices", func(r chi.Router) {
		r.Post("/refresh", h.handleRefresh)
		r.Post("/{id}/name", h.handleRename)
	})
	h.router = r
	return h
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// requestLogger logs every request at debug level once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (h *StatusHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Devices: h.registry.Snapshot(), Patterns: h.library.Names()}
	if active, ok := h.scheduler.Active(); ok {
		resp.Active = &active
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := h.library.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("pattern %q not found", name))
		return
	}

	runID, err := h.scheduler.Start(r.Context(), p)
	switch {
	case errors.Is(err, pattern.ErrInvalid), errors.Is(err, scheduler.ErrEmptyPattern):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "pattern": p.Name})
}

func (h *StatusHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *StatusHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	found, err := h.registry.Refresh(r.Context(), h.broadcast)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": found, "known": h.registry.Len()})
}

func (h *StatusHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"name": "..."}`))
		return
	}

	id := device.ID(chi.URLParam(r, "id"))
	err := h.registry.Rename(id, body.Name)
	switch {
	case errors.Is(err, registry.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	entry, _ := h.registry.Get(id)
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
