// Package app exposes the run service over HTTP.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osbits/apiwatch/internal/engine"
	"github.com/osbits/apiwatch/internal/service"
	"github.com/osbits/apiwatch/internal/storage"
)

// App wires the run service and storage into an HTTP handler tree.
type App struct {
	svc         *service.Service
	store       *storage.Store
	logger      *slog.Logger
	logRequests bool
}

// New constructs an App. The store may be nil when persistence is disabled.
func New(svc *service.Service, store *storage.Store, logger *slog.Logger, logRequests bool) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{svc: svc, store: store, logger: logger, logRequests: logRequests}
}

// Routes returns the HTTP handler tree for the server.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if a.logRequests {
		r.Use(middleware.Logger)
	}
	r.Get("/healthcheck", a.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/run", a.handleRunAll)
		r.Post("/run/{checkName}", a.handleRunOne)
		r.Get("/checks", a.handleListChecks)
		r.Get("/report", a.handleReport)
	})
	return r
}

type componentStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Database componentStatus `json:"database"`
}

// handleHealth reports the probe process's own health, not the platform's.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: componentStatus{Status: "ok"}}
	if a.store == nil {
		resp.Database = componentStatus{Status: "ok", Detail: "persistence disabled"}
	} else if err := a.store.Ping(r.Context()); err != nil {
		resp.Status = "critical"
		resp.Database = componentStatus{Status: "critical", Detail: err.Error()}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (a *App) handleRunAll(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.RunAll(r.Context())
	if err != nil {
		a.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *App) handleRunOne(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "checkName")
	result, err := a.svc.RunOne(r.Context(), name)
	if err != nil {
		a.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *App) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case err == service.ErrBusy:
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy", "detail": err.Error()})
	case err == service.ErrUnknownCheck:
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "detail": err.Error()})
	default:
		a.logger.Error("run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": err.Error()})
	}
}

func (a *App) handleListChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"checks": a.svc.Names()})
}

// handleReport serves the last known report: the in-memory slot first, the
// store as fallback after a restart.
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	if report := a.svc.LastReport(); report != nil {
		writeJSON(w, http.StatusOK, report)
		return
	}
	if stored := a.loadStored(r.Context()); stored != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stored)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "detail": "no run recorded yet"})
}

func (a *App) loadStored(ctx context.Context) []byte {
	if a.store == nil {
		return nil
	}
	stored, err := a.store.LatestReport(ctx)
	if err != nil {
		a.logger.Error("load stored report", "error", err)
		return nil
	}
	if stored == nil {
		return nil
	}
	// Round-trip through the report type so a corrupted payload cannot leak.
	var report engine.Report
	if err := json.Unmarshal(stored.Payload, &report); err != nil {
		a.logger.Error("decode stored report", "run_id", stored.RunID, "error", err)
		return nil
	}
	return stored.Payload
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
