package domain

import "testing"

func TestStockViewFindSizedMatchesCaseInsensitively(t *testing.T) {
	view := NewStockView(Product{
		SizeVariants: []SizeVariant{
			{Size: "m", ColorVariants: []ColorVariant{{Color: "red", Stock: 5}}},
		},
	})

	slot, ok := view.FindSized("M", "Red")
	if !ok {
		t.Fatalf("expected slot for M/Red")
	}
	if slot.Quantity != 5 || !slot.InSized {
		t.Fatalf("unexpected slot %+v", slot)
	}
	if slot.SizedIndex != [2]int{0, 0} {
		t.Fatalf("unexpected indices %+v", slot.SizedIndex)
	}
}

func TestStockViewFindSizedDefaultColorFallback(t *testing.T) {
	view := NewStockView(Product{
		SizeVariants: []SizeVariant{
			{Size: "M", ColorVariants: []ColorVariant{{Color: "", Stock: 2}}},
		},
	})

	slot, ok := view.FindSized("M", DefaultColor)
	if !ok {
		t.Fatalf("expected untagged colour to match the default colour")
	}
	if slot.Color != DefaultColor || slot.Quantity != 2 {
		t.Fatalf("unexpected slot %+v", slot)
	}

	if _, ok := view.FindSized("M", "Red"); ok {
		t.Fatalf("untagged colour must not match an explicit non-default request")
	}
}

func TestStockViewFindAggregateUntaggedFallback(t *testing.T) {
	view := NewStockView(Product{
		Inventory: &Inventory{
			Total: 9,
			Variants: []InventoryVariant{
				{Size: "M", Color: "Red", Quantity: 3},
				{Size: "M", Color: "", Quantity: 6},
			},
		},
	})

	slot, ok := view.FindAggregate("M", "Red")
	if !ok || slot.Quantity != 3 || slot.AggIndex != 0 {
		t.Fatalf("expected exact colour match, got %+v ok=%v", slot, ok)
	}

	// No Blue entry exists; the untagged entry acts as the fallback slot.
	slot, ok = view.FindAggregate("M", "Blue")
	if !ok || slot.Quantity != 6 || slot.AggIndex != 1 {
		t.Fatalf("expected untagged fallback, got %+v ok=%v", slot, ok)
	}

	if _, ok := view.FindAggregate("L", "Red"); ok {
		t.Fatalf("unknown size must not match")
	}
}

func TestStockViewTotals(t *testing.T) {
	view := NewStockView(Product{
		SizeVariants: []SizeVariant{
			{Size: "M", ColorVariants: []ColorVariant{{Color: "Red", Stock: 2}, {Color: "Blue", Stock: 3}}},
			{Size: "L", ColorVariants: []ColorVariant{{Color: "Red", Stock: 4}}},
		},
		Inventory: &Inventory{
			// Stale cached total; AggregateTotal sums the variants instead.
			Total: 99,
			Variants: []InventoryVariant{
				{Size: "M", Color: "Red", Quantity: 2},
				{Size: "L", Color: "Red", Quantity: 5},
			},
		},
	})

	if got := view.SizedTotal(); got != 9 {
		t.Fatalf("sized total: expected 9, got %d", got)
	}
	if got := view.AggregateTotal(); got != 7 {
		t.Fatalf("aggregate total: expected 7, got %d", got)
	}
}

func TestStockViewDeriveAggregatePrefersSizeVariants(t *testing.T) {
	view := NewStockView(Product{
		Variants: []LegacyVariant{{Size: "S", Color: "Green", Quantity: 1}},
		SizeVariants: []SizeVariant{
			{Size: "M", ColorVariants: []ColorVariant{{Color: "Red", Stock: 2}, {Color: "", Stock: 3}}},
		},
	})

	inventory := view.DeriveAggregate()
	if inventory.Total != 5 || len(inventory.Variants) != 2 {
		t.Fatalf("unexpected aggregate %+v", inventory)
	}
	if inventory.Variants[1].Color != DefaultColor {
		t.Fatalf("untagged colour must normalise to %q, got %q", DefaultColor, inventory.Variants[1].Color)
	}
}

func TestStockViewDeriveAggregateFromLegacyVariants(t *testing.T) {
	view := NewStockView(Product{
		Variants: []LegacyVariant{
			{Size: "S", Color: "Green", Quantity: 1},
			{Size: "M", Quantity: 4},
		},
	})

	inventory := view.DeriveAggregate()
	if inventory.Total != 5 || len(inventory.Variants) != 2 {
		t.Fatalf("unexpected aggregate %+v", inventory)
	}
	if inventory.Variants[1].Size != "M" || inventory.Variants[1].Color != DefaultColor {
		t.Fatalf("unexpected legacy mapping %+v", inventory.Variants[1])
	}
}

func TestStockViewDeriveAggregateSeedsEmptyProduct(t *testing.T) {
	inventory := NewStockView(Product{}).DeriveAggregate()
	if inventory.Total != SeedQuantity || len(inventory.Variants) != 1 {
		t.Fatalf("unexpected seeded aggregate %+v", inventory)
	}
	seed := inventory.Variants[0]
	if seed.Size != DefaultSize || seed.Color != DefaultColor || seed.Quantity != SeedQuantity {
		t.Fatalf("unexpected seed slot %+v", seed)
	}
}

func TestStockViewDeriveSizeVariantsGroupsBySize(t *testing.T) {
	view := NewStockView(Product{
		Inventory: &Inventory{
			Variants: []InventoryVariant{
				{Size: "M", Color: "Red", Quantity: 2},
				{Size: "L", Color: "Red", Quantity: 4},
				{Size: "M", Color: "Blue", Quantity: 3},
			},
		},
	})

	variants := view.DeriveSizeVariants()
	if len(variants) != 2 {
		t.Fatalf("expected two size buckets, got %+v", variants)
	}
	if variants[0].Size != "M" || variants[1].Size != "L" {
		t.Fatalf("size buckets must keep first-seen order, got %+v", variants)
	}
	m := variants[0].ColorVariants
	if len(m) != 2 || m[0].Color != "Blue" || m[1].Color != "Red" {
		t.Fatalf("colour slots must sort alphabetically, got %+v", m)
	}
}

func TestStockViewDivergences(t *testing.T) {
	view := NewStockView(Product{
		SizeVariants: []SizeVariant{
			{Size: "M", ColorVariants: []ColorVariant{
				{Color: "Red", Stock: 5},
				{Color: "Blue", Stock: 2},
				{Color: "Green", Stock: 1},
			}},
		},
		Inventory: &Inventory{
			Variants: []InventoryVariant{
				{Size: "M", Color: "Red", Quantity: 3},
				{Size: "M", Color: "Blue", Quantity: 2},
			},
		},
	})

	divergences := view.Divergences()
	if len(divergences) != 1 {
		t.Fatalf("expected one divergence, got %+v", divergences)
	}
	div := divergences[0]
	if div.Color != "Red" || div.SizedQuantity != 5 || div.AggregateQuantity != 3 {
		t.Fatalf("unexpected divergence %+v", div)
	}
}

func TestStockViewDivergencesRequireBothShapes(t *testing.T) {
	view := NewStockView(Product{
		SizeVariants: []SizeVariant{
			{Size: "M", ColorVariants: []ColorVariant{{Color: "Red", Stock: 5}}},
		},
	})
	if got := view.Divergences(); got != nil {
		t.Fatalf("expected nil without an aggregate, got %+v", got)
	}
}
