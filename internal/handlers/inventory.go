package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kleankuts/api/internal/domain"
	"github.com/kleankuts/api/internal/platform/httpx"
	"github.com/kleankuts/api/internal/services"
)

const maxInventoryRequestBody = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// InventoryHandlers exposes the internal stock mutation endpoints.
type InventoryHandlers struct {
	inventory services.InventoryService
}

// NewInventoryHandlers constructs an inventory handler set.
func NewInventoryHandlers(svc services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{inventory: svc}
}

// Routes registers the inventory endpoints beneath /internal.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/inventory:reduce", h.reduce)
	r.Post("/orders/{orderID}/inventory:apply", h.applyOrder)
	r.Get("/inventory/{productID}", h.getStock)
}

type reduceRequest struct {
	ProductID     string `json:"productId"`
	Size          string `json:"size"`
	Color         string `json:"color"`
	Quantity      int    `json:"quantity"`
	TransactionID string `json:"transactionId"`
}

type reducePayload struct {
	Success          bool   `json:"success"`
	TransactionID    string `json:"transactionId"`
	ProductID        string `json:"productId"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	Requested        int    `json:"requested"`
	Applied          int    `json:"applied"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
	Replayed         bool   `json:"replayed"`
}

func (h *InventoryHandlers) reduce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "inventory service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxInventoryRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req reduceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.inventory.Reduce(ctx, services.ReduceCommand{
		ProductID:     req.ProductID,
		Size:          req.Size,
		Color:         req.Color,
		Quantity:      req.Quantity,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildReducePayload(result))
}

type applyOrderRequest struct {
	Force bool `json:"force"`
}

type orderLinePayload struct {
	Index            int    `json:"index"`
	ProductID        string `json:"productId"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	Requested        int    `json:"requested"`
	Applied          int    `json:"applied"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
	Replayed         bool   `json:"replayed"`
}

type orderLineErrorPayload struct {
	Index     int    `json:"index"`
	ProductID string `json:"productId,omitempty"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

type applyOrderPayload struct {
	Success       bool                    `json:"success"`
	OrderID       string                  `json:"orderId"`
	TransactionID string                  `json:"transactionId"`
	Skipped       int                     `json:"skipped"`
	Results       []orderLinePayload      `json:"results"`
	Errors        []orderLineErrorPayload `json:"errors"`
}

func (h *InventoryHandlers) applyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "inventory service not available", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req applyOrderRequest
	if r.Body != nil {
		body, err := readLimitedBody(r, maxInventoryRequestBody)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
				return
			}
		}
	}

	result, err := h.inventory.ApplyOrder(ctx, services.ApplyOrderCommand{
		OrderID: orderID,
		Force:   req.Force,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	// Line failures ride in the envelope with a 200; batch orchestration
	// reports partial outcomes rather than failing the whole request.
	payload := applyOrderPayload{
		Success:       result.Success,
		OrderID:       result.OrderID,
		TransactionID: result.TransactionID,
		Skipped:       result.Skipped,
		Results:       make([]orderLinePayload, 0, len(result.Results)),
		Errors:        make([]orderLineErrorPayload, 0, len(result.Errors)),
	}
	for _, line := range result.Results {
		payload.Results = append(payload.Results, orderLinePayload{
			Index:            line.Index,
			ProductID:        line.ProductID,
			Size:             line.Size,
			Color:            line.Color,
			Requested:        line.Requested,
			Applied:          line.Applied,
			PreviousQuantity: line.PreviousQuantity,
			NewQuantity:      line.NewQuantity,
			Replayed:         line.Replayed,
		})
	}
	for _, lineErr := range result.Errors {
		payload.Errors = append(payload.Errors, orderLineErrorPayload{
			Index:     lineErr.Index,
			ProductID: lineErr.ProductID,
			Error:     lineErr.Code,
			Message:   lineErr.Message,
		})
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

type stockSlotPayload struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

type divergencePayload struct {
	Size              string `json:"size"`
	Color             string `json:"color"`
	SizedQuantity     int    `json:"sizedQuantity"`
	AggregateQuantity int    `json:"aggregateQuantity"`
}

type stockSnapshotPayload struct {
	Success        bool                `json:"success"`
	ProductID      string              `json:"productId"`
	Title          string              `json:"title,omitempty"`
	SizedTotal     int                 `json:"sizedTotal"`
	AggregateTotal int                 `json:"aggregateTotal"`
	CachedTotal    *int                `json:"cachedTotal,omitempty"`
	SizeVariants   []stockSlotPayload  `json:"sizeVariants"`
	Aggregate      []stockSlotPayload  `json:"aggregate"`
	Legacy         []stockSlotPayload  `json:"legacy,omitempty"`
	Divergences    []divergencePayload `json:"divergences,omitempty"`
	UpdatedAt      string              `json:"updatedAt,omitempty"`
}

func (h *InventoryHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "inventory service not available", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	snapshot, err := h.inventory.GetStock(ctx, productID)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildStockSnapshotPayload(snapshot))
}

func buildReducePayload(result services.ReduceResult) reducePayload {
	return reducePayload{
		Success:          true,
		TransactionID:    result.TransactionID,
		ProductID:        result.ProductID,
		Size:             result.Size,
		Color:            result.Color,
		Requested:        result.Requested,
		Applied:          result.Applied,
		PreviousQuantity: result.PreviousQuantity,
		NewQuantity:      result.NewQuantity,
		Replayed:         result.Replayed,
	}
}

func buildStockSnapshotPayload(snapshot services.StockSnapshot) stockSnapshotPayload {
	payload := stockSnapshotPayload{
		Success:        true,
		ProductID:      snapshot.ProductID,
		Title:          snapshot.Title,
		SizedTotal:     snapshot.SizedTotal,
		AggregateTotal: snapshot.AggregateTotal,
		SizeVariants:   make([]stockSlotPayload, 0),
		Aggregate:      make([]stockSlotPayload, 0),
		UpdatedAt:      formatTime(snapshot.UpdatedAt),
	}
	for _, sv := range snapshot.SizeVariants {
		for _, cv := range sv.ColorVariants {
			payload.SizeVariants = append(payload.SizeVariants, stockSlotPayload{
				Size:     sv.Size,
				Color:    cv.Color,
				Quantity: cv.Stock,
			})
		}
	}
	if snapshot.Inventory != nil {
		cached := snapshot.Inventory.Total
		payload.CachedTotal = &cached
		for _, iv := range snapshot.Inventory.Variants {
			payload.Aggregate = append(payload.Aggregate, stockSlotPayload{
				Size:     iv.Size,
				Color:    domain.NormalizeColor(iv.Color),
				Quantity: iv.Quantity,
			})
		}
	}
	for _, lv := range snapshot.LegacyVariants {
		payload.Legacy = append(payload.Legacy, stockSlotPayload{
			Size:     lv.Size,
			Color:    domain.NormalizeColor(lv.Color),
			Quantity: lv.Quantity,
		})
	}
	for _, div := range snapshot.Divergences {
		payload.Divergences = append(payload.Divergences, divergencePayload{
			Size:              div.Size,
			Color:             div.Color,
			SizedQuantity:     div.SizedQuantity,
			AggregateQuantity: div.AggregateQuantity,
		})
	}
	return payload
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidIdentifier):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_identifier", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrStockContended):
		httpx.WriteError(ctx, w, httpx.NewError("stock_contended", "stock write lost to concurrent updates, retry", http.StatusConflict))
	case errors.Is(err, services.ErrEmptyOrder):
		httpx.WriteError(ctx, w, httpx.NewError("empty_order", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "inventory operation failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxInventoryRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
