package mongo

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kleankuts/api/internal/repositories"
)

func TestSizedDecrementQueryGuardsFilterAndArrayFilters(t *testing.T) {
	oid := primitive.NewObjectID()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	filter, update, arrayFilters := sizedDecrementQuery(oid, repositories.SizedDecrementRequest{
		ProductID: oid.Hex(),
		Size:      "M",
		Color:     "Red",
		Amount:    2,
		Now:       now,
	})

	if filter["_id"] != oid {
		t.Fatalf("expected filter on _id %s, got %v", oid.Hex(), filter["_id"])
	}
	sizeMatch := filter["sizeVariants"].(bson.M)["$elemMatch"].(bson.M)
	if sizeMatch["size"] != "M" {
		t.Fatalf("expected size match M, got %v", sizeMatch["size"])
	}
	colorMatch := sizeMatch["colorVariants"].(bson.M)["$elemMatch"].(bson.M)
	if colorMatch["color"] != "Red" {
		t.Fatalf("expected color match Red, got %v", colorMatch["color"])
	}
	if !reflect.DeepEqual(colorMatch["stock"], bson.M{"$gte": 2}) {
		t.Fatalf("expected stock guard in match filter, got %v", colorMatch["stock"])
	}

	inc := update["$inc"].(bson.M)
	if inc["sizeVariants.$[sv].colorVariants.$[cv].stock"] != -2 {
		t.Fatalf("expected -2 inc on the colour slot, got %v", inc)
	}
	if update["$set"].(bson.M)["updatedAt"] != now.UTC() {
		t.Fatalf("expected updatedAt stamp, got %v", update["$set"])
	}

	if len(arrayFilters.Filters) != 2 {
		t.Fatalf("expected two array filters, got %d", len(arrayFilters.Filters))
	}
	sv := arrayFilters.Filters[0].(bson.M)
	if sv["sv.size"] != "M" {
		t.Fatalf("unexpected size array filter %v", sv)
	}
	cv := arrayFilters.Filters[1].(bson.M)
	if cv["cv.color"] != "Red" {
		t.Fatalf("unexpected color array filter %v", cv)
	}
	if !reflect.DeepEqual(cv["cv.stock"], bson.M{"$gte": 2}) {
		t.Fatalf("expected stock guard in array filter, got %v", cv["cv.stock"])
	}
}

func TestAggregateDecrementQueryChargesTotalInSameUpdate(t *testing.T) {
	oid := primitive.NewObjectID()
	_, update, _ := aggregateDecrementQuery(oid, repositories.AggregateDecrementRequest{
		ProductID: oid.Hex(),
		Size:      "M",
		Color:     "Red",
		Amount:    3,
		Now:       time.Now(),
	})

	inc := update["$inc"].(bson.M)
	if inc["inventory.variants.$[iv].quantity"] != -3 {
		t.Fatalf("expected -3 inc on the variant entry, got %v", inc)
	}
	if inc["inventory.total"] != -3 {
		t.Fatalf("expected the cached total charged in the same update, got %v", inc)
	}
}

func TestAggregateDecrementQueryGuardsFilterAndArrayFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	filter, _, arrayFilters := aggregateDecrementQuery(oid, repositories.AggregateDecrementRequest{
		ProductID: oid.Hex(),
		Size:      "L",
		Color:     "Blue",
		Amount:    4,
		Now:       time.Now(),
	})

	elem := filter["inventory.variants"].(bson.M)["$elemMatch"].(bson.M)
	if elem["size"] != "L" || elem["color"] != "Blue" {
		t.Fatalf("unexpected variant match %v", elem)
	}
	if !reflect.DeepEqual(elem["quantity"], bson.M{"$gte": 4}) {
		t.Fatalf("expected quantity guard in match filter, got %v", elem["quantity"])
	}

	if len(arrayFilters.Filters) != 1 {
		t.Fatalf("expected a single array filter, got %d", len(arrayFilters.Filters))
	}
	iv := arrayFilters.Filters[0].(bson.M)
	if iv["iv.size"] != "L" || iv["iv.color"] != "Blue" {
		t.Fatalf("unexpected array filter %v", iv)
	}
	if !reflect.DeepEqual(iv["iv.quantity"], bson.M{"$gte": 4}) {
		t.Fatalf("expected quantity guard in array filter, got %v", iv["iv.quantity"])
	}
}

func TestAggregateDecrementQueryUntaggedColour(t *testing.T) {
	oid := primitive.NewObjectID()
	filter, _, arrayFilters := aggregateDecrementQuery(oid, repositories.AggregateDecrementRequest{
		ProductID:     oid.Hex(),
		Size:          "M",
		ColorUntagged: true,
		Amount:        1,
		Now:           time.Now(),
	})

	// Empty, null and absent colour fields must all match.
	want := bson.M{"$in": bson.A{"", nil}}
	elem := filter["inventory.variants"].(bson.M)["$elemMatch"].(bson.M)
	if !reflect.DeepEqual(elem["color"], want) {
		t.Fatalf("expected untagged colour match in filter, got %v", elem["color"])
	}
	iv := arrayFilters.Filters[0].(bson.M)
	if !reflect.DeepEqual(iv["iv.color"], want) {
		t.Fatalf("expected untagged colour match in array filter, got %v", iv["iv.color"])
	}
}
