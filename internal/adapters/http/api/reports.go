// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"

	"github.com/benchwatch/benchwatch/internal/adapters/storage"
)

// ReportsHandler serves persisted reconciliation reports.
type ReportsHandler struct {
	deps Dependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleLatest handles GET /v1/reports/latest requests. With
// Accept: text/plain the report is rendered in its human-readable form.
func (h *ReportsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	report, err := h.deps.LatestReport(r.Context())
	if errors.Is(err, storage.ErrNoReports) {
		writeError(w, http.StatusNotFound, "no_reports", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if r.Header.Get("Accept") == "text/plain" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(report.Render()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
