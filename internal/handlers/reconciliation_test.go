package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kleankuts/api/internal/services"
)

type stubReconciliationService struct {
	backfillFn func(ctx context.Context) (services.ReconciliationReport, error)
	syncFn     func(ctx context.Context) (services.ReconciliationReport, error)
}

func (s *stubReconciliationService) RunBackfill(ctx context.Context) (services.ReconciliationReport, error) {
	if s.backfillFn != nil {
		return s.backfillFn(ctx)
	}
	return services.ReconciliationReport{}, errors.New("not implemented")
}

func (s *stubReconciliationService) RunSync(ctx context.Context) (services.ReconciliationReport, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx)
	}
	return services.ReconciliationReport{}, errors.New("not implemented")
}

func newReconciliationTestRouter(svc services.ReconciliationService) http.Handler {
	handlers := NewReconciliationHandlers(svc)
	return NewRouter(WithInternalRoutes(handlers.Routes))
}

func TestReconciliationBackfillEndpoint(t *testing.T) {
	svc := &stubReconciliationService{
		backfillFn: func(context.Context) (services.ReconciliationReport, error) {
			return services.ReconciliationReport{
				Processed: 12,
				Updated:   3,
				Details: []services.ReconciliationDetail{
					{ProductID: "prod-1", Action: "backfill_inventory", Note: "derived 2 variants, total 7"},
				},
			}, nil
		},
	}
	router := newReconciliationTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/reconciliation:backfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSONBody(t, rec)
	if payload["success"] != true || payload["processed"] != float64(12) || payload["updated"] != float64(3) {
		t.Fatalf("unexpected payload %v", payload)
	}
	details, ok := payload["details"].([]any)
	if !ok || len(details) != 1 {
		t.Fatalf("unexpected details %v", payload["details"])
	}
	detail := details[0].(map[string]any)
	if detail["action"] != "backfill_inventory" || detail["productId"] != "prod-1" {
		t.Fatalf("unexpected detail %v", detail)
	}
}

func TestReconciliationSyncEndpointScanFailure(t *testing.T) {
	svc := &stubReconciliationService{
		syncFn: func(context.Context) (services.ReconciliationReport, error) {
			return services.ReconciliationReport{}, errors.New("page fetch failed")
		},
	}
	router := newReconciliationTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/reconciliation:sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	payload := decodeJSONBody(t, rec)
	if payload["success"] != false || payload["error"] != "internal_error" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
