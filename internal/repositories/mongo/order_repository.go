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

	domain "github.com/kleankuts/api/internal/domain"
	pmongo "github.com/kleankuts/api/internal/platform/mongo"
	"github.com/kleankuts/api/internal/repositories"
)

const ordersCollection = "orders"

type OrderRepository struct {
	provider *pmongo.Provider
}

func NewOrderRepository(provider *pmongo.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires mongo provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) collection(ctx context.Context) (*driver.Collection, error) {
	db, err := r.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(ordersCollection), nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	oid, err := parseObjectID(orderID)
	if err != nil {
		return domain.Order{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("order id %q is not a valid object id", orderID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, pmongo.WrapError("orders.get", err)
	}

	var doc orderDocument
	if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return domain.Order{}, repositories.NewInventoryError(repositories.InventoryErrorOrderNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, pmongo.WrapError("orders.get", err)
	}
	return doc.toDomain(), nil
}

// MarkLinesApplied flips the idempotency flag of the addressed line items by
// positional field path. The products array is never replaced wholesale, so a
// concurrent writer touching other order fields cannot be clobbered.
func (r *OrderRepository) MarkLinesApplied(ctx context.Context, orderID string, lines []repositories.LineApplied, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if len(lines) == 0 {
		return nil
	}
	oid, err := parseObjectID(orderID)
	if err != nil {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidIdentifier, fmt.Sprintf("order id %q is not a valid object id", orderID), err)
	}

	col, err := r.collection(ctx)
	if err != nil {
		return pmongo.WrapError("orders.markLinesApplied", err)
	}

	set, err := lineAppliedSet(lines, now)
	if err != nil {
		return err
	}

	res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return pmongo.WrapError("orders.markLinesApplied", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	return nil
}

// lineAppliedSet builds the $set document for the addressed line items. Each
// flag targets its line by index, plus one shared inventoryUpdatedAt stamp.
func lineAppliedSet(lines []repositories.LineApplied, now time.Time) (bson.M, error) {
	set := bson.M{"inventoryUpdatedAt": now.UTC()}
	for _, line := range lines {
		if line.Index < 0 {
			return nil, fmt.Errorf("mark lines applied: negative line index %d", line.Index)
		}
		set[fmt.Sprintf("products.%d.inventoryUpdated", line.Index)] = true
	}
	return set, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty"`
	Products           []orderLineDocument `bson:"products"`
	InventoryUpdatedAt *time.Time          `bson:"inventoryUpdatedAt,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt,omitempty"`
}

type orderLineDocument struct {
	ProductID        string `bson:"productId"`
	Size             string `bson:"size,omitempty"`
	Color            string `bson:"color,omitempty"`
	Variant          string `bson:"variant,omitempty"`
	Quantity         int    `bson:"quantity"`
	InventoryUpdated bool   `bson:"inventoryUpdated,omitempty"`
}

func (d orderDocument) toDomain() domain.Order {
	order := domain.Order{
		ID:                 d.ID.Hex(),
		InventoryUpdatedAt: d.InventoryUpdatedAt,
		CreatedAt:          d.CreatedAt,
	}
	if len(d.Products) > 0 {
		order.Products = make([]domain.OrderLineItem, len(d.Products))
		for i, line := range d.Products {
			order.Products[i] = domain.OrderLineItem{
				ProductID:        strings.TrimSpace(line.ProductID),
				Size:             line.Size,
				Color:            line.Color,
				Variant:          line.Variant,
				Quantity:         line.Quantity,
				InventoryUpdated: line.InventoryUpdated,
			}
		}
	}
	return order
}
