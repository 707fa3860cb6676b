package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultMongoURI         = "mongodb://localhost:27017"
	defaultMongoDatabase    = "kleankuts"
	defaultMongoDialTimeout = 10 * time.Second
	defaultMongoOpTimeout   = 15 * time.Second

	defaultAuditRetention       = 90 * 24 * time.Hour
	defaultAuditCleanupInterval = 6 * time.Hour
	defaultAuditCleanupBatch    = 500

	defaultReconcileBatchSize = 100
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server         ServerConfig
	Mongo          MongoConfig
	Audit          AuditConfig
	Reconciliation ReconciliationConfig
	Events         EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// MongoConfig stores document store parameters.
type MongoConfig struct {
	URI              string
	Database         string
	DialTimeout      time.Duration
	OperationTimeout time.Duration
}

// AuditConfig controls the inventory audit ledger retention sweep.
type AuditConfig struct {
	Retention       time.Duration
	CleanupInterval time.Duration
	CleanupBatch    int
}

// ReconciliationConfig tunes the batch repair scans.
type ReconciliationConfig struct {
	BatchSize int
}

// EventsConfig configures the optional stock movement event publisher.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Mongo: MongoConfig{
			URI:              stringWithDefault(lookup, "API_MONGO_URI", defaultMongoURI),
			Database:         stringWithDefault(lookup, "API_MONGO_DATABASE", defaultMongoDatabase),
			DialTimeout:      durationWithDefault(lookup, "API_MONGO_DIAL_TIMEOUT", defaultMongoDialTimeout),
			OperationTimeout: durationWithDefault(lookup, "API_MONGO_OP_TIMEOUT", defaultMongoOpTimeout),
		},
		Audit: AuditConfig{
			Retention:       durationWithDefault(lookup, "API_AUDIT_RETENTION", defaultAuditRetention),
			CleanupInterval: durationWithDefault(lookup, "API_AUDIT_CLEANUP_INTERVAL", defaultAuditCleanupInterval),
			CleanupBatch:    intWithDefault(lookup, "API_AUDIT_CLEANUP_BATCH", defaultAuditCleanupBatch),
		},
		Reconciliation: ReconciliationConfig{
			BatchSize: intWithDefault(lookup, "API_RECONCILE_BATCH_SIZE", defaultReconcileBatchSize),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_EVENTS_TOPIC", ""),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Mongo.URI) == "" {
		missing = append(missing, "Mongo.URI")
	}
	if strings.TrimSpace(cfg.Mongo.Database) == "" {
		missing = append(missing, "Mongo.Database")
	}
	if cfg.Audit.Retention <= 0 {
		missing = append(missing, "Audit.Retention")
	}
	if cfg.Audit.CleanupInterval <= 0 {
		missing = append(missing, "Audit.CleanupInterval")
	}
	if cfg.Audit.CleanupBatch <= 0 {
		missing = append(missing, "Audit.CleanupBatch")
	}
	if cfg.Reconciliation.BatchSize <= 0 {
		missing = append(missing, "Reconciliation.BatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
