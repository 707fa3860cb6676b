package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kleankuts/api/internal/platform/httpx"
	"github.com/kleankuts/api/internal/services"
)

// ReconciliationHandlers exposes the on-demand repair scans.
type ReconciliationHandlers struct {
	reconciliation services.ReconciliationService
}

// NewReconciliationHandlers constructs a reconciliation handler set.
func NewReconciliationHandlers(svc services.ReconciliationService) *ReconciliationHandlers {
	return &ReconciliationHandlers{reconciliation: svc}
}

// Routes registers the reconciliation endpoints beneath /internal.
func (h *ReconciliationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconciliation:backfill", h.backfill)
	r.Post("/reconciliation:sync", h.sync)
}

type reconciliationDetailPayload struct {
	ProductID string `json:"productId"`
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
}

type reconciliationPayload struct {
	Success   bool                          `json:"success"`
	Processed int                           `json:"processed"`
	Updated   int                           `json:"updated"`
	Details   []reconciliationDetailPayload `json:"details"`
}

func (h *ReconciliationHandlers) backfill(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context) (services.ReconciliationReport, error) {
		return h.reconciliation.RunBackfill(ctx)
	})
}

func (h *ReconciliationHandlers) sync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context) (services.ReconciliationReport, error) {
		return h.reconciliation.RunSync(ctx)
	})
}

func (h *ReconciliationHandlers) run(w http.ResponseWriter, r *http.Request, scan func(context.Context) (services.ReconciliationReport, error)) {
	ctx := r.Context()
	if h.reconciliation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "reconciliation service not available", http.StatusServiceUnavailable))
		return
	}

	report, err := scan(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "reconciliation scan failed", http.StatusInternalServerError))
		return
	}

	payload := reconciliationPayload{
		Success:   true,
		Processed: report.Processed,
		Updated:   report.Updated,
		Details:   make([]reconciliationDetailPayload, 0, len(report.Details)),
	}
	for _, detail := range report.Details {
		payload.Details = append(payload.Details, reconciliationDetailPayload{
			ProductID: detail.ProductID,
			Action:    detail.Action,
			Note:      detail.Note,
		})
	}

	writeJSONResponse(w, http.StatusOK, payload)
}
