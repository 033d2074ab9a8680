// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/benchwatch/benchwatch/internal/adapters/source"
	"github.com/benchwatch/benchwatch/internal/domain/model"
	"github.com/benchwatch/benchwatch/internal/domain/normalize"
)

// maxBatchBytes caps the accepted request body.
const maxBatchBytes = 32 << 20

// reconcileRequest is the POST /v1/reconcile body. Either an inline
// record batch or a model id to pull from the scrape source.
type reconcileRequest struct {
	Records []normalize.RawRecord `json:"records,omitempty"`
	ModelID string                `json:"model_id,omitempty"`
}

// ReconcileHandler handles reconciliation run requests.
type ReconcileHandler struct {
	deps Dependencies
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(deps Dependencies) *ReconcileHandler {
	return &ReconcileHandler{deps: deps}
}

// HandleReconcile handles POST /v1/reconcile requests. The response is
// the full reconciliation report for the submitted batch.
func (h *ReconcileHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req reconcileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if len(req.Records) == 0 && req.ModelID == "" {
		writeError(w, http.StatusBadRequest, "empty_batch", ErrBadRequest)
		return
	}

	var (
		report *model.ReconciliationReport
		err    error
	)
	if len(req.Records) > 0 {
		report, err = h.deps.Reconcile(r.Context(), req.Records)
	} else {
		report, err = h.deps.ReconcileModel(r.Context(), req.ModelID)
	}
	if errors.Is(err, source.ErrNotScraped) {
		writeError(w, http.StatusNotFound, "model_not_scraped", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
