package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestAuditIndexModels(t *testing.T) {
	models := auditIndexModels()
	if len(models) != 2 {
		t.Fatalf("expected 2 index models, got %d", len(models))
	}

	txn := models[0]
	keys := txn.Keys.(bson.D)
	if len(keys) != 1 || keys[0].Key != "transactionId" || keys[0].Value != 1 {
		t.Fatalf("unexpected transaction id keys %v", txn.Keys)
	}
	if txn.Options == nil || txn.Options.Unique == nil || !*txn.Options.Unique {
		t.Fatal("transaction id index must be unique")
	}
	if txn.Options.Name == nil || *txn.Options.Name != "uniq_transaction_id" {
		t.Fatalf("unexpected index name %v", txn.Options.Name)
	}

	ts := models[1]
	keys = ts.Keys.(bson.D)
	if len(keys) != 1 || keys[0].Key != "timestamp" || keys[0].Value != -1 {
		t.Fatalf("unexpected timestamp keys %v", ts.Keys)
	}
}
