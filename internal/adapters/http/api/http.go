// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/benchwatch/benchwatch/internal/domain/model"
	"github.com/benchwatch/benchwatch/internal/domain/normalize"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Reconcile runs the pipeline over a raw record batch.
	Reconcile(ctx context.Context, batch []normalize.RawRecord) (*model.ReconciliationReport, error)

	// ReconcileModel pulls a model's scraped records and reconciles them.
	ReconcileModel(ctx context.Context, modelID string) (*model.ReconciliationReport, error)

	// LatestReport returns the most recently persisted report.
	LatestReport(ctx context.Context) (*model.ReconciliationReport, error)
}

// Server wires HTTP routes for the reconciliation API.
type Server struct {
	reconcileHandler *ReconcileHandler
	reportsHandler   *ReportsHandler
	healthHandler    *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		reconcileHandler: NewReconcileHandler(deps),
		reportsHandler:   NewReportsHandler(deps),
		healthHandler:    NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/v1/reconcile", MetricsMiddleware(s.reconcileHandler.HandleReconcile, "reconcile"))
	mux.HandleFunc("/v1/reports/latest", MetricsMiddleware(s.reportsHandler.HandleLatest, "reports_latest"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
