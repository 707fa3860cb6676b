package domain

import (
	"sort"
	"strings"
)

const (
	// DefaultColor is the slot untagged legacy variants are treated as.
	DefaultColor = "Default"
	// DefaultSize is used when an order line carries no size.
	DefaultSize = "default"
	// SeedQuantity is written when a product has no stock source of truth at
	// all and a structure has to be invented during backfill.
	SeedQuantity = 10
)

// StockSlot is one normalised size/colour stock cell together with where it
// was found on the document.
type StockSlot struct {
	Size        string
	Color       string
	Quantity    int
	InSized     bool
	SizedIndex  [2]int
	InAggregate bool
	AggIndex    int
}

// StockView presents the redundant stock shapes of a single product behind one
// surface so call sites never branch on which fields happen to be populated.
type StockView struct {
	product Product
}

// NewStockView builds a view over the supplied product.
func NewStockView(product Product) StockView {
	return StockView{product: product}
}

// HasSizeVariants reports whether the nested catalog structure is populated.
func (v StockView) HasSizeVariants() bool {
	return len(v.product.SizeVariants) > 0
}

// HasAggregate reports whether the derived inventory aggregate is populated.
func (v StockView) HasAggregate() bool {
	return v.product.Inventory != nil && len(v.product.Inventory.Variants) > 0
}

// HasLegacyVariants reports whether the flat legacy list is populated.
func (v StockView) HasLegacyVariants() bool {
	return len(v.product.Variants) > 0
}

// FindSized returns the indices and stock of the (size, colour) cell in the
// nested structure. Matching is case-insensitive; colour falls back to the
// default slot.
func (v StockView) FindSized(size, color string) (StockSlot, bool) {
	size = NormalizeSize(size)
	for i, sv := range v.product.SizeVariants {
		if !strings.EqualFold(NormalizeSize(sv.Size), size) {
			continue
		}
		for j, cv := range sv.ColorVariants {
			if ColorsEquivalent(cv.Color, color) {
				return StockSlot{
					Size:       NormalizeSize(sv.Size),
					Color:      NormalizeColor(cv.Color),
					Quantity:   cv.Stock,
					InSized:    true,
					SizedIndex: [2]int{i, j},
				}, true
			}
		}
	}
	return StockSlot{}, false
}

// FindAggregate returns the index and quantity of the matching entry in
// inventory.variants. An entry with an empty colour matches any request for
// the default colour and, when no exact colour entry exists, acts as the
// fallback slot for the requested size.
func (v StockView) FindAggregate(size, color string) (StockSlot, bool) {
	if v.product.Inventory == nil {
		return StockSlot{}, false
	}
	size = NormalizeSize(size)
	fallback := -1
	for i, iv := range v.product.Inventory.Variants {
		if !strings.EqualFold(NormalizeSize(iv.Size), size) {
			continue
		}
		if ColorsEquivalent(iv.Color, color) {
			return StockSlot{
				Size:        size,
				Color:       NormalizeColor(iv.Color),
				Quantity:    iv.Quantity,
				InAggregate: true,
				AggIndex:    i,
			}, true
		}
		if strings.TrimSpace(iv.Color) == "" && fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		iv := v.product.Inventory.Variants[fallback]
		return StockSlot{
			Size:        size,
			Color:       DefaultColor,
			Quantity:    iv.Quantity,
			InAggregate: true,
			AggIndex:    fallback,
		}, true
	}
	return StockSlot{}, false
}

// SizedTotal sums every colour slot of the nested structure.
func (v StockView) SizedTotal() int {
	total := 0
	for _, sv := range v.product.SizeVariants {
		for _, cv := range sv.ColorVariants {
			total += cv.Stock
		}
	}
	return total
}

// AggregateTotal sums the aggregate variant quantities, ignoring the cached
// inventory.total field which may be stale.
func (v StockView) AggregateTotal() int {
	if v.product.Inventory == nil {
		return 0
	}
	total := 0
	for _, iv := range v.product.Inventory.Variants {
		total += iv.Quantity
	}
	return total
}

// DeriveAggregate rebuilds the inventory aggregate from the best available
// source of truth: the nested structure first, then the flat legacy list,
// finally a seeded default slot when nothing holds stock information.
func (v StockView) DeriveAggregate() Inventory {
	var variants []InventoryVariant
	switch {
	case v.HasSizeVariants():
		for _, sv := range v.product.SizeVariants {
			for _, cv := range sv.ColorVariants {
				variants = append(variants, InventoryVariant{
					Size:     NormalizeSize(sv.Size),
					Color:    NormalizeColor(cv.Color),
					Quantity: cv.Stock,
				})
			}
		}
	case v.HasLegacyVariants():
		for _, lv := range v.product.Variants {
			variants = append(variants, InventoryVariant{
				Size:     NormalizeSize(lv.Size),
				Color:    NormalizeColor(lv.Color),
				Quantity: lv.Quantity,
			})
		}
	default:
		variants = []InventoryVariant{{Size: DefaultSize, Color: DefaultColor, Quantity: SeedQuantity}}
	}

	total := 0
	for _, iv := range variants {
		total += iv.Quantity
	}
	return Inventory{Total: total, Variants: variants}
}

// DeriveSizeVariants rebuilds the nested structure from the aggregate (or the
// legacy list when no aggregate exists), grouping colour slots under their
// size buckets in a stable order.
func (v StockView) DeriveSizeVariants() []SizeVariant {
	source := make([]InventoryVariant, 0)
	switch {
	case v.HasAggregate():
		source = append(source, v.product.Inventory.Variants...)
	case v.HasLegacyVariants():
		for _, lv := range v.product.Variants {
			source = append(source, InventoryVariant{Size: lv.Size, Color: lv.Color, Quantity: lv.Quantity})
		}
	default:
		source = append(source, InventoryVariant{Size: DefaultSize, Color: DefaultColor, Quantity: SeedQuantity})
	}

	buckets := make(map[string][]ColorVariant)
	order := make([]string, 0)
	for _, iv := range source {
		size := NormalizeSize(iv.Size)
		if _, seen := buckets[size]; !seen {
			order = append(order, size)
		}
		buckets[size] = append(buckets[size], ColorVariant{
			Color: NormalizeColor(iv.Color),
			Stock: iv.Quantity,
		})
	}

	result := make([]SizeVariant, 0, len(order))
	for _, size := range order {
		colors := buckets[size]
		sort.SliceStable(colors, func(i, j int) bool { return colors[i].Color < colors[j].Color })
		result = append(result, SizeVariant{Size: size, ColorVariants: colors})
	}
	return result
}

// Divergences lists the size/colour keys whose quantities disagree between the
// nested structure and the aggregate. Keys present in only one shape are not
// reported; backfill, not sync, is responsible for those.
func (v StockView) Divergences() []StockDivergence {
	if !v.HasSizeVariants() || !v.HasAggregate() {
		return nil
	}
	var out []StockDivergence
	for _, sv := range v.product.SizeVariants {
		for _, cv := range sv.ColorVariants {
			agg, ok := v.FindAggregate(sv.Size, cv.Color)
			if !ok {
				continue
			}
			if agg.Quantity != cv.Stock {
				out = append(out, StockDivergence{
					Size:              NormalizeSize(sv.Size),
					Color:             NormalizeColor(cv.Color),
					SizedQuantity:     cv.Stock,
					AggregateQuantity: agg.Quantity,
				})
			}
		}
	}
	return out
}

// StockDivergence records one size/colour key whose two representations
// disagree. The aggregate quantity is the authoritative value.
type StockDivergence struct {
	Size              string
	Color             string
	SizedQuantity     int
	AggregateQuantity int
}
