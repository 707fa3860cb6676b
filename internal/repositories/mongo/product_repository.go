package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/kleankuts/api/internal/domain"
	pmongo "github.com/kleankuts/api/internal/platform/mongo"
	"github.com/kleankuts/api/internal/repositories"
)

const productsCollection = "products"

type ProductRepository struct {
	provider *pmongo.Provider
}

func NewProductRepository(provider *pmongo.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires mongo provider")
	}
	return &ProductRepository{provider: provider}, nil
}

func (r *ProductRepository) collection(ctx context.Context) (*driver.Collection, error) {
	db, err := r.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(productsCollection), nil
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	oid, err := parseObjectID(productID)
	if err != nil {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("product id %q is not a valid object id", productID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return domain.Product{}, pmongo.WrapError("products.get", err)
	}

	var doc productDocument
	if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
		}
		return domain.Product{}, pmongo.WrapError("products.get", err)
	}
	return doc.toDomain(), nil
}

// List scans the catalog in _id order. The page token is the hex id of the
// last document of the previous page, so an interleaved insert or delete never
// shifts the scan window.
func (r *ProductRepository) List(ctx context.Context, query repositories.ProductScanQuery) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 500 {
		pageSize = 500
	}

	filter := bson.M{}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		oid, err := parseObjectID(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("page token %q is not a valid object id", token), err)
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	col, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pmongo.WrapError("products.list", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(pageSize + 1))
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pmongo.WrapError("products.list", err)
	}
	defer cursor.Close(ctx)

	var products []domain.Product
	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return domain.CursorPage[domain.Product]{}, pmongo.WrapError("products.list", err)
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		nextToken = products[len(products)-1].ID
	}

	return domain.CursorPage[domain.Product]{
		Items:         products,
		NextPageToken: nextToken,
	}, nil
}

// DecrementSizedStock applies a guarded $inc to one colour slot of the nested
// structure. The stock guard lives in the match filter as well as the array
// filters, so a concurrent decrement that drains the slot surfaces as
// Matched=false instead of a negative quantity.
func (r *ProductRepository) DecrementSizedStock(ctx context.Context, req repositories.SizedDecrementRequest) (repositories.StockWriteResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockWriteResult{}, errors.New("product repository not initialised")
	}
	if req.Amount <= 0 {
		return repositories.StockWriteResult{}, fmt.Errorf("decrement sized stock: amount must be > 0, got %d", req.Amount)
	}
	oid, err := parseObjectID(req.ProductID)
	if err != nil {
		return repositories.StockWriteResult{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("product id %q is not a valid object id", req.ProductID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return repositories.StockWriteResult{}, pmongo.WrapError("products.decrementSized", err)
	}

	filter, update, arrayFilters := sizedDecrementQuery(oid, req)
	res, err := col.UpdateOne(ctx, filter, update, options.Update().SetArrayFilters(arrayFilters))
	if err != nil {
		return repositories.StockWriteResult{}, pmongo.WrapError("products.decrementSized", err)
	}
	return repositories.StockWriteResult{Matched: res.MatchedCount > 0}, nil
}

// DecrementAggregateStock decrements one entry of inventory.variants and the
// cached inventory.total in the same update command, so the total can never
// drift from the entries on a partial write.
func (r *ProductRepository) DecrementAggregateStock(ctx context.Context, req repositories.AggregateDecrementRequest) (repositories.StockWriteResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockWriteResult{}, errors.New("product repository not initialised")
	}
	if req.Amount <= 0 {
		return repositories.StockWriteResult{}, fmt.Errorf("decrement aggregate stock: amount must be > 0, got %d", req.Amount)
	}
	oid, err := parseObjectID(req.ProductID)
	if err != nil {
		return repositories.StockWriteResult{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("product id %q is not a valid object id", req.ProductID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return repositories.StockWriteResult{}, pmongo.WrapError("products.decrementAggregate", err)
	}

	filter, update, arrayFilters := aggregateDecrementQuery(oid, req)
	res, err := col.UpdateOne(ctx, filter, update, options.Update().SetArrayFilters(arrayFilters))
	if err != nil {
		return repositories.StockWriteResult{}, pmongo.WrapError("products.decrementAggregate", err)
	}
	return repositories.StockWriteResult{Matched: res.MatchedCount > 0}, nil
}

// sizedDecrementQuery builds the guarded update for one colour slot of the
// nested structure. The stock guard sits in the match filter and again in the
// array filters; $set on updatedAt makes ModifiedCount unreliable, so callers
// read MatchedCount to detect a guard miss.
func sizedDecrementQuery(oid primitive.ObjectID, req repositories.SizedDecrementRequest) (bson.M, bson.M, options.ArrayFilters) {
	filter := bson.M{
		"_id": oid,
		"sizeVariants": bson.M{"$elemMatch": bson.M{
			"size": req.Size,
			"colorVariants": bson.M{"$elemMatch": bson.M{
				"color": req.Color,
				"stock": bson.M{"$gte": req.Amount},
			}},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"sizeVariants.$[sv].colorVariants.$[cv].stock": -req.Amount},
		"$set": bson.M{"updatedAt": req.Now.UTC()},
	}
	arrayFilters := options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"sv.size": req.Size},
			bson.M{"cv.color": req.Color, "cv.stock": bson.M{"$gte": req.Amount}},
		},
	}
	return filter, update, arrayFilters
}

// aggregateDecrementQuery builds the guarded update for one inventory.variants
// entry. The entry and the cached inventory.total are $inc'd in the same
// command, so the total cannot drift from the entries on a partial write.
func aggregateDecrementQuery(oid primitive.ObjectID, req repositories.AggregateDecrementRequest) (bson.M, bson.M, options.ArrayFilters) {
	// Entries written before colours existed have an empty, null or absent
	// colour field; $in with null matches all three.
	var colorMatch interface{} = req.Color
	if req.ColorUntagged {
		colorMatch = bson.M{"$in": bson.A{"", nil}}
	}

	filter := bson.M{
		"_id": oid,
		"inventory.variants": bson.M{"$elemMatch": bson.M{
			"size":     req.Size,
			"color":    colorMatch,
			"quantity": bson.M{"$gte": req.Amount},
		}},
	}
	update := bson.M{
		"$inc": bson.M{
			"inventory.variants.$[iv].quantity": -req.Amount,
			"inventory.total":                   -req.Amount,
		},
		"$set": bson.M{"updatedAt": req.Now.UTC()},
	}
	arrayFilters := options.ArrayFilters{
		Filters: []interface{}{
			bson.M{
				"iv.size":     req.Size,
				"iv.color":    colorMatch,
				"iv.quantity": bson.M{"$gte": req.Amount},
			},
		},
	}
	return filter, update, arrayFilters
}

func (r *ProductRepository) SetAggregate(ctx context.Context, productID string, inventory domain.Inventory, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	oid, err := parseObjectID(productID)
	if err != nil {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("product id %q is not a valid object id", productID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return pmongo.WrapError("products.setAggregate", err)
	}

	doc := newInventoryDocument(inventory)
	res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"inventory": doc,
		"updatedAt": now.UTC(),
	}})
	if err != nil {
		return pmongo.WrapError("products.setAggregate", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", productID), nil)
	}
	return nil
}

func (r *ProductRepository) SetSizeVariants(ctx context.Context, productID string, variants []domain.SizeVariant, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	oid, err := parseObjectID(productID)
	if err != nil {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("product id %q is not a valid object id", productID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return pmongo.WrapError("products.setSizeVariants", err)
	}

	docs := make([]sizeVariantDocument, len(variants))
	for i, variant := range variants {
		docs[i] = newSizeVariantDocument(variant)
	}
	res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"sizeVariants": docs,
		"updatedAt":    now.UTC(),
	}})
	if err != nil {
		return pmongo.WrapError("products.setSizeVariants", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", productID), nil)
	}
	return nil
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	ID           primitive.ObjectID    `bson:"_id,omitempty"`
	Title        string                `bson:"title,omitempty"`
	Variants     []legacyVariantDoc    `bson:"variants,omitempty"`
	SizeVariants []sizeVariantDocument `bson:"sizeVariants,omitempty"`
	Inventory    *inventoryDocument    `bson:"inventory,omitempty"`
	CreatedAt    time.Time             `bson:"createdAt,omitempty"`
	UpdatedAt    time.Time             `bson:"updatedAt,omitempty"`
}

type legacyVariantDoc struct {
	Size     string `bson:"size,omitempty"`
	Color    string `bson:"color,omitempty"`
	Quantity int    `bson:"quantity"`
}

type colorVariantDocument struct {
	Color string `bson:"color"`
	Stock int    `bson:"stock"`
}

type sizeVariantDocument struct {
	Size          string                 `bson:"size"`
	ColorVariants []colorVariantDocument `bson:"colorVariants"`
}

type inventoryVariantDoc struct {
	Size     string `bson:"size"`
	Color    string `bson:"color,omitempty"`
	Quantity int    `bson:"quantity"`
}

type inventoryDocument struct {
	Total    int                   `bson:"total"`
	Variants []inventoryVariantDoc `bson:"variants"`
}

func (d productDocument) toDomain() domain.Product {
	product := domain.Product{
		ID:        d.ID.Hex(),
		Title:     strings.TrimSpace(d.Title),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if len(d.Variants) > 0 {
		product.Variants = make([]domain.LegacyVariant, len(d.Variants))
		for i, variant := range d.Variants {
			product.Variants[i] = domain.LegacyVariant{
				Size:     variant.Size,
				Color:    variant.Color,
				Quantity: variant.Quantity,
			}
		}
	}
	if len(d.SizeVariants) > 0 {
		product.SizeVariants = make([]domain.SizeVariant, len(d.SizeVariants))
		for i, variant := range d.SizeVariants {
			product.SizeVariants[i] = variant.toDomain()
		}
	}
	if d.Inventory != nil {
		inventory := domain.Inventory{Total: d.Inventory.Total}
		if len(d.Inventory.Variants) > 0 {
			inventory.Variants = make([]domain.InventoryVariant, len(d.Inventory.Variants))
			for i, variant := range d.Inventory.Variants {
				inventory.Variants[i] = domain.InventoryVariant{
					Size:     variant.Size,
					Color:    variant.Color,
					Quantity: variant.Quantity,
				}
			}
		}
		product.Inventory = &inventory
	}
	return product
}

func (d sizeVariantDocument) toDomain() domain.SizeVariant {
	variant := domain.SizeVariant{Size: d.Size}
	if len(d.ColorVariants) > 0 {
		variant.ColorVariants = make([]domain.ColorVariant, len(d.ColorVariants))
		for i, cv := range d.ColorVariants {
			variant.ColorVariants[i] = domain.ColorVariant{Color: cv.Color, Stock: cv.Stock}
		}
	}
	return variant
}

func newSizeVariantDocument(variant domain.SizeVariant) sizeVariantDocument {
	doc := sizeVariantDocument{
		Size:          variant.Size,
		ColorVariants: make([]colorVariantDocument, len(variant.ColorVariants)),
	}
	for i, cv := range variant.ColorVariants {
		doc.ColorVariants[i] = colorVariantDocument{Color: cv.Color, Stock: cv.Stock}
	}
	return doc
}

func newInventoryDocument(inventory domain.Inventory) inventoryDocument {
	doc := inventoryDocument{
		Total:    inventory.Total,
		Variants: make([]inventoryVariantDoc, len(inventory.Variants)),
	}
	for i, variant := range inventory.Variants {
		doc.Variants[i] = inventoryVariantDoc{
			Size:     variant.Size,
			Color:    variant.Color,
			Quantity: variant.Quantity,
		}
	}
	return doc
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("parse object id %q: %w", id, err)
	}
	return oid, nil
}
