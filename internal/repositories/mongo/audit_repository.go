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

const auditCollection = "inventoryAudits"

// AuditRepository persists the append-only reconciliation ledger. Uniqueness
// of the transaction id is enforced by index, not by lookup, so two racing
// writers can never both record the same transaction.
type AuditRepository struct {
	provider *pmongo.Provider
}

func NewAuditRepository(provider *pmongo.Provider) (*AuditRepository, error) {
	if provider == nil {
		return nil, errors.New("audit repository requires mongo provider")
	}
	return &AuditRepository{provider: provider}, nil
}

func (r *AuditRepository) collection(ctx context.Context) (*driver.Collection, error) {
	db, err := r.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(auditCollection), nil
}

func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("audit repository not initialised")
	}
	col, err := r.collection(ctx)
	if err != nil {
		return pmongo.WrapError("audits.ensureIndexes", err)
	}

	if _, err := col.Indexes().CreateMany(ctx, auditIndexModels()); err != nil {
		return pmongo.WrapError("audits.ensureIndexes", err)
	}
	return nil
}

// auditIndexModels declares the ledger indexes: the unique transaction id that
// backs idempotent appends, and the timestamp ordering the retention sweep
// deletes by.
func auditIndexModels() []driver.IndexModel {
	return []driver.IndexModel{
		{
			Keys:    bson.D{{Key: "transactionId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_transaction_id"),
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("timestamp_desc"),
		},
	}
}

func (r *AuditRepository) Find(ctx context.Context, transactionID string) (domain.AuditRecord, error) {
	if r == nil || r.provider == nil {
		return domain.AuditRecord{}, errors.New("audit repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.AuditRecord{}, errors.New("audit find: transaction id is required")
	}

	col, err := r.collection(ctx)
	if err != nil {
		return domain.AuditRecord{}, pmongo.WrapError("audits.find", err)
	}

	var doc auditDocument
	err = col.FindOne(ctx, bson.M{"transactionId": transactionID}).Decode(&doc)
	if err != nil {
		return domain.AuditRecord{}, pmongo.WrapError("audits.find", err)
	}
	return doc.toDomain(), nil
}

// Append inserts the ledger entry. A duplicate key on the transaction id means
// another writer already recorded this transaction; callers treat that as
// "already processed" and replay the stored outcome.
func (r *AuditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	if r == nil || r.provider == nil {
		return errors.New("audit repository not initialised")
	}
	if strings.TrimSpace(record.TransactionID) == "" {
		return errors.New("audit append: transaction id is required")
	}

	col, err := r.collection(ctx)
	if err != nil {
		return pmongo.WrapError("audits.append", err)
	}

	doc := newAuditDocument(record)
	if _, err := col.InsertOne(ctx, doc); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return repositories.NewInventoryError(repositories.InventoryErrorDuplicateTransaction, fmt.Sprintf("transaction %s already recorded", record.TransactionID), err)
		}
		return pmongo.WrapError("audits.append", err)
	}
	return nil
}

// DeleteOlderThan removes up to limit ledger entries older than cutoff and
// reports how many were deleted. Callers loop until the count comes back
// short to sweep a large backlog in bounded batches.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("audit repository not initialised")
	}
	if limit <= 0 {
		limit = 500
	}

	col, err := r.collection(ctx)
	if err != nil {
		return 0, pmongo.WrapError("audits.deleteOlderThan", err)
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := col.Find(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff.UTC()}}, opts)
	if err != nil {
		return 0, pmongo.WrapError("audits.deleteOlderThan", err)
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return 0, fmt.Errorf("decode audit id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return 0, pmongo.WrapError("audits.deleteOlderThan", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, pmongo.WrapError("audits.deleteOlderThan", err)
	}
	return int(res.DeletedCount), nil
}

// Helper structures ---------------------------------------------------------

type auditDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	TransactionID    string             `bson:"transactionId"`
	ProductID        string             `bson:"productId"`
	Size             string             `bson:"size,omitempty"`
	Color            string             `bson:"color,omitempty"`
	PreviousQuantity int                `bson:"previousQuantity"`
	NewQuantity      int                `bson:"newQuantity"`
	Success          bool               `bson:"success"`
	Error            string             `bson:"error,omitempty"`
	Timestamp        time.Time          `bson:"timestamp"`
}

func newAuditDocument(record domain.AuditRecord) auditDocument {
	return auditDocument{
		TransactionID:    strings.TrimSpace(record.TransactionID),
		ProductID:        strings.TrimSpace(record.ProductID),
		Size:             record.Size,
		Color:            record.Color,
		PreviousQuantity: record.PreviousQuantity,
		NewQuantity:      record.NewQuantity,
		Success:          record.Success,
		Error:            record.Error,
		Timestamp:        record.Timestamp.UTC(),
	}
}

func (d auditDocument) toDomain() domain.AuditRecord {
	return domain.AuditRecord{
		TransactionID:    d.TransactionID,
		ProductID:        d.ProductID,
		Size:             d.Size,
		Color:            d.Color,
		PreviousQuantity: d.PreviousQuantity,
		NewQuantity:      d.NewQuantity,
		Success:          d.Success,
		Error:            d.Error,
		Timestamp:        d.Timestamp,
	}
}
