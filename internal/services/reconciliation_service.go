package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/kleankuts/api/internal/domain"
	"github.com/kleankuts/api/internal/repositories"
)

const defaultReconcileBatchSize = 100

const (
	actionBackfillInventory    = "backfill_inventory"
	actionBackfillSizeVariants = "backfill_size_variants"
	actionSyncSizeVariants     = "sync_size_variants"
	actionRepairFailed         = "repair_failed"
)

// ReconciliationServiceDeps bundles the collaborators for the repair scans.
type ReconciliationServiceDeps struct {
	Products  repositories.ProductRepository
	BatchSize int
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	products  repositories.ProductRepository
	batchSize int
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewReconciliationService wires dependencies into a concrete ReconciliationService implementation.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Products == nil {
		return nil, errors.New("reconciliation service: product repository is required")
	}

	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReconcileBatchSize
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconciliationService{
		products:  deps.Products,
		batchSize: batchSize,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// RunBackfill derives whichever stock structure a product is missing from the
// populated one. Products with no stock source of truth at all get a seeded
// default slot in both structures.
func (r *reconciliationService) RunBackfill(ctx context.Context) (ReconciliationReport, error) {
	report := ReconciliationReport{}
	err := r.scan(ctx, func(ctx context.Context, product domain.Product) {
		report.Processed++
		view := domain.NewStockView(product)
		now := r.clock()
		touched := false

		if !view.HasAggregate() {
			inventory := view.DeriveAggregate()
			if err := r.products.SetAggregate(ctx, product.ID, inventory, now); err != nil {
				report.Details = append(report.Details, repairFailure(product.ID, err))
				r.logRepairFailure(ctx, actionBackfillInventory, product.ID, err)
				return
			}
			touched = true
			report.Details = append(report.Details, ReconciliationDetail{
				ProductID: product.ID,
				Action:    actionBackfillInventory,
				Note:      fmt.Sprintf("derived %d variants, total %d", len(inventory.Variants), inventory.Total),
			})
		}

		if !view.HasSizeVariants() {
			variants := view.DeriveSizeVariants()
			if err := r.products.SetSizeVariants(ctx, product.ID, variants, now); err != nil {
				report.Details = append(report.Details, repairFailure(product.ID, err))
				r.logRepairFailure(ctx, actionBackfillSizeVariants, product.ID, err)
				return
			}
			touched = true
			report.Details = append(report.Details, ReconciliationDetail{
				ProductID: product.ID,
				Action:    actionBackfillSizeVariants,
				Note:      fmt.Sprintf("derived %d size buckets", len(variants)),
			})
		}

		if touched {
			report.Updated++
		}
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

// RunSync overwrites sizeVariants quantities with the aggregate's for every
// size/colour key the two shapes disagree on. The aggregate wins because the
// order path writes both shapes while catalog edits may only touch
// sizeVariants.
func (r *reconciliationService) RunSync(ctx context.Context) (ReconciliationReport, error) {
	report := ReconciliationReport{}
	err := r.scan(ctx, func(ctx context.Context, product domain.Product) {
		report.Processed++
		view := domain.NewStockView(product)
		divergences := view.Divergences()
		if len(divergences) == 0 {
			return
		}

		repaired := make([]domain.SizeVariant, len(product.SizeVariants))
		for i, sv := range product.SizeVariants {
			repaired[i] = domain.SizeVariant{
				Size:          sv.Size,
				ColorVariants: make([]domain.ColorVariant, len(sv.ColorVariants)),
			}
			for j, cv := range sv.ColorVariants {
				stock := cv.Stock
				if agg, ok := view.FindAggregate(sv.Size, cv.Color); ok {
					stock = agg.Quantity
				}
				repaired[i].ColorVariants[j] = domain.ColorVariant{Color: cv.Color, Stock: stock}
			}
		}

		if err := r.products.SetSizeVariants(ctx, product.ID, repaired, r.clock()); err != nil {
			report.Details = append(report.Details, repairFailure(product.ID, err))
			r.logRepairFailure(ctx, actionSyncSizeVariants, product.ID, err)
			return
		}
		report.Updated++
		report.Details = append(report.Details, ReconciliationDetail{
			ProductID: product.ID,
			Action:    actionSyncSizeVariants,
			Note:      fmt.Sprintf("overwrote %d diverged keys", len(divergences)),
		})
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

// scan walks the whole catalog in id-ordered batches and hands every product
// to visit. A page fetch failure aborts the scan; per-product repair failures
// are the visitor's concern.
func (r *reconciliationService) scan(ctx context.Context, visit func(context.Context, domain.Product)) error {
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := r.products.List(ctx, repositories.ProductScanQuery{
			PageSize:  r.batchSize,
			PageToken: pageToken,
		})
		if err != nil {
			return err
		}

		for _, product := range page.Items {
			visit(ctx, product)
		}

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (r *reconciliationService) logRepairFailure(ctx context.Context, action, productID string, err error) {
	r.logger(ctx, "reconciliation_repair_failed", map[string]any{
		"action":    action,
		"productId": productID,
		"error":     err.Error(),
	})
}

func repairFailure(productID string, err error) ReconciliationDetail {
	return ReconciliationDetail{
		ProductID: productID,
		Action:    actionRepairFailed,
		Note:      err.Error(),
	}
}
