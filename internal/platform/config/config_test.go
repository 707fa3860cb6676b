package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.Mongo.URI != "mongodb://localhost:27017" || cfg.Mongo.Database != "kleankuts" {
		t.Fatalf("unexpected mongo defaults %+v", cfg.Mongo)
	}
	if cfg.Audit.Retention != 90*24*time.Hour || cfg.Audit.CleanupBatch != 500 {
		t.Fatalf("unexpected audit defaults %+v", cfg.Audit)
	}
	if cfg.Reconciliation.BatchSize != 100 {
		t.Fatalf("unexpected reconciliation defaults %+v", cfg.Reconciliation)
	}
	if cfg.Events.ProjectID != "" || cfg.Events.Topic != "" {
		t.Fatalf("events must be disabled by default, got %+v", cfg.Events)
	}
}

func TestLoadEnvMapOverrides(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_SERVER_PORT":            "9090",
		"API_MONGO_URI":              "mongodb://db.internal:27017",
		"API_MONGO_DATABASE":         "shop",
		"API_AUDIT_RETENTION":        "720h",
		"API_AUDIT_CLEANUP_INTERVAL": "1h",
		"API_AUDIT_CLEANUP_BATCH":    "50",
		"API_RECONCILE_BATCH_SIZE":   "25",
		"API_EVENTS_PROJECT_ID":      "shop-prod",
		"API_EVENTS_TOPIC":           "stock-movements",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.Mongo.URI != "mongodb://db.internal:27017" || cfg.Mongo.Database != "shop" {
		t.Fatalf("unexpected mongo config %+v", cfg.Mongo)
	}
	if cfg.Audit.Retention != 720*time.Hour || cfg.Audit.CleanupInterval != time.Hour || cfg.Audit.CleanupBatch != 50 {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
	if cfg.Reconciliation.BatchSize != 25 {
		t.Fatalf("unexpected reconciliation config %+v", cfg.Reconciliation)
	}
	if cfg.Events.ProjectID != "shop-prod" || cfg.Events.Topic != "stock-movements" {
		t.Fatalf("unexpected events config %+v", cfg.Events)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_MONGO_DATABASE=\"devshop\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.Mongo.Database != "devshop" {
		t.Fatalf("quotes must be stripped, got %q", cfg.Mongo.Database)
	}
}

func TestLoadEnvMapWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(envFile),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "9090"}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("env map must take precedence, got %q", cfg.Server.Port)
	}
}

func TestLoadValidatesFields(t *testing.T) {
	_, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_MONGO_URI":           " ",
		"API_AUDIT_RETENTION":     "-1h",
		"API_AUDIT_CLEANUP_BATCH": "0",
	}))
	if err == nil {
		t.Fatalf("expected validation failure")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := vErr.Fields()
	want := map[string]bool{"Mongo.URI": false, "Audit.Retention": false, "Audit.CleanupBatch": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_SERVER_READ_TIMEOUT":  "soon",
		"API_RECONCILE_BATCH_SIZE": "many",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Reconciliation.BatchSize != 100 {
		t.Fatalf("expected default batch size, got %d", cfg.Reconciliation.BatchSize)
	}
}
