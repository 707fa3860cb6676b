package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kleankuts/api/internal/domain"
	"github.com/kleankuts/api/internal/repositories"
)

func singlePage(products ...domain.Product) func(ctx context.Context, query repositories.ProductScanQuery) (domain.CursorPage[domain.Product], error) {
	return func(_ context.Context, _ repositories.ProductScanQuery) (domain.CursorPage[domain.Product], error) {
		return domain.CursorPage[domain.Product]{Items: products}, nil
	}
}

func newTestReconciliationService(t *testing.T, products repositories.ProductRepository) ReconciliationService {
	t.Helper()
	svc, err := NewReconciliationService(ReconciliationServiceDeps{
		Products: products,
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new reconciliation service: %v", err)
	}
	return svc
}

func TestReconciliationBackfillDerivesAggregateFromSizeVariants(t *testing.T) {
	product := domain.Product{
		ID: "prod-1",
		SizeVariants: []domain.SizeVariant{
			{Size: "M", ColorVariants: []domain.ColorVariant{
				{Color: "Red", Stock: 3},
				{Color: "Blue", Stock: 4},
			}},
		},
	}

	var written *domain.Inventory
	products := &stubProductRepo{
		listFn: singlePage(product),
		setAggFn: func(_ context.Context, _ string, inventory domain.Inventory, _ time.Time) error {
			written = &inventory
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunBackfill(context.Background())
	if err != nil {
		t.Fatalf("run backfill: %v", err)
	}

	if report.Processed != 1 || report.Updated != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if written == nil {
		t.Fatalf("expected aggregate to be written")
	}
	if written.Total != 7 || len(written.Variants) != 2 {
		t.Fatalf("unexpected derived aggregate %+v", written)
	}
	if len(report.Details) != 1 || report.Details[0].Action != actionBackfillInventory {
		t.Fatalf("unexpected details %+v", report.Details)
	}
}

func TestReconciliationBackfillSeedsBareProduct(t *testing.T) {
	product := domain.Product{ID: "prod-bare"}

	var aggregate *domain.Inventory
	var sized []domain.SizeVariant
	products := &stubProductRepo{
		listFn: singlePage(product),
		setAggFn: func(_ context.Context, _ string, inventory domain.Inventory, _ time.Time) error {
			aggregate = &inventory
			return nil
		},
		setSVFn: func(_ context.Context, _ string, variants []domain.SizeVariant, _ time.Time) error {
			sized = variants
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunBackfill(context.Background())
	if err != nil {
		t.Fatalf("run backfill: %v", err)
	}
	if report.Updated != 1 || len(report.Details) != 2 {
		t.Fatalf("expected both structures written, got %+v", report)
	}

	if aggregate == nil || aggregate.Total != domain.SeedQuantity {
		t.Fatalf("expected seeded aggregate, got %+v", aggregate)
	}
	if len(sized) != 1 || sized[0].Size != domain.DefaultSize {
		t.Fatalf("expected seeded size bucket, got %+v", sized)
	}
	if len(sized[0].ColorVariants) != 1 || sized[0].ColorVariants[0].Stock != domain.SeedQuantity {
		t.Fatalf("expected seeded colour slot, got %+v", sized[0].ColorVariants)
	}
}

func TestReconciliationBackfillSkipsConsistentProducts(t *testing.T) {
	products := &stubProductRepo{
		listFn: singlePage(dualShapeProduct(5)),
		setAggFn: func(context.Context, string, domain.Inventory, time.Time) error {
			t.Fatalf("no aggregate write expected")
			return nil
		},
		setSVFn: func(context.Context, string, []domain.SizeVariant, time.Time) error {
			t.Fatalf("no size variant write expected")
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunBackfill(context.Background())
	if err != nil {
		t.Fatalf("run backfill: %v", err)
	}
	if report.Processed != 1 || report.Updated != 0 || len(report.Details) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestReconciliationBackfillRecordsRepairFailure(t *testing.T) {
	products := &stubProductRepo{
		listFn: singlePage(
			domain.Product{ID: "prod-bad", SizeVariants: []domain.SizeVariant{
				{Size: "M", ColorVariants: []domain.ColorVariant{{Color: "Red", Stock: 1}}},
			}},
			domain.Product{ID: "prod-good", SizeVariants: []domain.SizeVariant{
				{Size: "M", ColorVariants: []domain.ColorVariant{{Color: "Red", Stock: 1}}},
			}},
		),
		setAggFn: func(_ context.Context, productID string, _ domain.Inventory, _ time.Time) error {
			if productID == "prod-bad" {
				return errors.New("write failed")
			}
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunBackfill(context.Background())
	if err != nil {
		t.Fatalf("run backfill: %v", err)
	}

	// The scan continues past a per-product failure.
	if report.Processed != 2 || report.Updated != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	failed := 0
	for _, detail := range report.Details {
		if detail.Action == actionRepairFailed {
			failed++
			if detail.ProductID != "prod-bad" {
				t.Fatalf("unexpected failed product %s", detail.ProductID)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected one repair failure, got %d", failed)
	}
}

func TestReconciliationSyncOverwritesDivergedKeys(t *testing.T) {
	product := domain.Product{
		ID: "prod-2",
		SizeVariants: []domain.SizeVariant{
			{Size: "M", ColorVariants: []domain.ColorVariant{
				{Color: "Red", Stock: 5},
				{Color: "Blue", Stock: 2},
			}},
		},
		Inventory: &domain.Inventory{
			Total: 5,
			Variants: []domain.InventoryVariant{
				{Size: "M", Color: "Red", Quantity: 3},
				{Size: "M", Color: "Blue", Quantity: 2},
			},
		},
	}

	var written []domain.SizeVariant
	products := &stubProductRepo{
		listFn: singlePage(product),
		setSVFn: func(_ context.Context, _ string, variants []domain.SizeVariant, _ time.Time) error {
			written = variants
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunSync(context.Background())
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}
	if report.Updated != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	if len(written) != 1 || len(written[0].ColorVariants) != 2 {
		t.Fatalf("unexpected rewritten variants %+v", written)
	}
	// The aggregate value wins for the diverged key; the consistent key keeps
	// its stock.
	if written[0].ColorVariants[0].Stock != 3 {
		t.Fatalf("expected Red overwritten to 3, got %d", written[0].ColorVariants[0].Stock)
	}
	if written[0].ColorVariants[1].Stock != 2 {
		t.Fatalf("expected Blue untouched at 2, got %d", written[0].ColorVariants[1].Stock)
	}
}

func TestReconciliationSyncLeavesConsistentProductsAlone(t *testing.T) {
	products := &stubProductRepo{
		listFn: singlePage(dualShapeProduct(5)),
		setSVFn: func(context.Context, string, []domain.SizeVariant, time.Time) error {
			t.Fatalf("no write expected for a consistent product")
			return nil
		},
	}

	svc := newTestReconciliationService(t, products)

	report, err := svc.RunSync(context.Background())
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}
	if report.Processed != 1 || report.Updated != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestReconciliationScanFollowsPageTokens(t *testing.T) {
	var queries []repositories.ProductScanQuery
	products := &stubProductRepo{
		listFn: func(_ context.Context, query repositories.ProductScanQuery) (domain.CursorPage[domain.Product], error) {
			queries = append(queries, query)
			switch query.PageToken {
			case "":
				return domain.CursorPage[domain.Product]{
					Items:         []domain.Product{dualShapeProduct(1)},
					NextPageToken: "page-2",
				}, nil
			case "page-2":
				return domain.CursorPage[domain.Product]{
					Items: []domain.Product{dualShapeProduct(2)},
				}, nil
			default:
				t.Fatalf("unexpected page token %q", query.PageToken)
				return domain.CursorPage[domain.Product]{}, nil
			}
		},
	}

	svc, err := NewReconciliationService(ReconciliationServiceDeps{Products: products, BatchSize: 1})
	if err != nil {
		t.Fatalf("new reconciliation service: %v", err)
	}

	report, err := svc.RunSync(context.Background())
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}

	if report.Processed != 2 {
		t.Fatalf("expected both pages visited, got %+v", report)
	}
	if len(queries) != 2 || queries[0].PageSize != 1 || queries[1].PageToken != "page-2" {
		t.Fatalf("unexpected queries %+v", queries)
	}
}

func TestReconciliationScanAbortsOnPageError(t *testing.T) {
	pageErr := errors.New("list failed")
	products := &stubProductRepo{
		listFn: func(context.Context, repositories.ProductScanQuery) (domain.CursorPage[domain.Product], error) {
			return domain.CursorPage[domain.Product]{}, pageErr
		},
	}

	svc := newTestReconciliationService(t, products)

	if _, err := svc.RunBackfill(context.Background()); !errors.Is(err, pageErr) {
		t.Fatalf("expected page error to abort the scan, got %v", err)
	}
}
