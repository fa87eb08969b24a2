// Package bootstrap wires configuration, logging and the external clients
// every entrypoint needs.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/schema"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/cache"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/database"
	infrapubsub "github.com/fitnessllm/dataplatform/pkg/infrastructure/pubsub"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/secrets"
	infrastorage "github.com/fitnessllm/dataplatform/pkg/infrastructure/storage"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/warehouse"
)

// Config holds standard configuration for all services
type Config struct {
	ProjectID string
	// Env prefixes every warehouse dataset (dev_bronze_strava etc).
	Env       string
	RawBucket string

	Workers     int
	Sample      int
	MaxAttempts int
	// StageTimeout bounds each pipeline stage; 0 disables the deadline.
	StageTimeout time.Duration

	EnablePublish bool

	EncryptionSecret string
	RedisSecret      string
	SentryDSN        string
}

// Service holds initialized dependencies
type Service struct {
	DB        shared.Database
	Store     shared.BlobStore
	Warehouse shared.Warehouse
	Metrics   shared.MetricsStore
	Secrets   shared.SecretStore
	Cache     shared.TokenCache
	Pub       shared.Publisher
	Schemas   *schema.Registry
	Config    *Config
}

// LoadConfig reads configuration from environment variables
func LoadConfig() *Config {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		projectID = shared.ProjectID // Fallback
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	return &Config{
		ProjectID:        projectID,
		Env:              env,
		RawBucket:        os.Getenv("RAW_BUCKET"),
		Workers:          envInt("WORKER", 1),
		Sample:           envInt("SAMPLE", 0),
		MaxAttempts:      envInt("MAX_ATTEMPTS", 5),
		// STAGE_TIMEOUT is in minutes; 0 disables the per-stage deadline.
		StageTimeout:     time.Duration(envInt("STAGE_TIMEOUT", 30)) * time.Minute,
		EnablePublish:    os.Getenv("ENABLE_PUBLISH") == "true",
		EncryptionSecret: envDefault("ENCRYPTION_SECRET", "encryption"),
		RedisSecret:      os.Getenv("REDIS_SECRET"),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring non-numeric env var", "key", key, "value", raw)
		return fallback
	}
	return n
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetSlogHandlerOptions returns standard handler options for GCP
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component

	// Check if component is overridden in the record attributes
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false // stop
		}
		return true
	})

	if comp != "" {
		newMsg := fmt.Sprintf("[%s] %s", comp, r.Message)
		newRecord := slog.NewRecord(r.Time, r.Level, newMsg, r.PC)
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// InitLogger configures structured logging with Cloud Logging compatible keys
func InitLogger() {
	opts := GetSlogHandlerOptions(slog.LevelInfo)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(&ComponentHandler{Handler: handler})
	slog.SetDefault(logger)
}

// NewLogger creates a configured logger instance
func NewLogger(serviceName string) *slog.Logger {
	logLevelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := GetSlogHandlerOptions(level)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

// NewService initializes all standard dependencies
func NewService(ctx context.Context) (*Service, error) {
	InitLogger()
	cfg := LoadConfig()

	slog.Info("Initializing service", "project_id", cfg.ProjectID, "env", cfg.Env)

	// Firestore
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Firestore init failed", "error", err)
		return nil, fmt.Errorf("firestore init: %w", err)
	}

	// Storage
	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		slog.Error("Storage init failed", "error", err)
		return nil, fmt.Errorf("storage init: %w", err)
	}

	// BigQuery
	bqClient, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("BigQuery init failed", "error", err)
		return nil, fmt.Errorf("bigquery init: %w", err)
	}
	bq := &warehouse.BigQueryAdapter{Client: bqClient}
	schemas := schema.NewRegistry()

	// Secret Manager
	smClient, err := secretmanager.NewClient(ctx)
	if err != nil {
		slog.Error("Secret Manager init failed", "error", err)
		return nil, fmt.Errorf("secretmanager init: %w", err)
	}
	sec := &secrets.SecretsAdapter{Client: smClient, ProjectID: cfg.ProjectID}

	// Token cache, best-effort: ingest still works with every lookup missing.
	var tokenCache shared.TokenCache = cache.NoopCache{}
	if cfg.RedisSecret != "" {
		info, err := sec.GetJSONSecret(ctx, cfg.RedisSecret)
		if err != nil {
			slog.Warn("Redis secret unavailable, token cache disabled", "error", err)
		} else {
			tokenCache = cache.NewRedisCache(info)
			slog.Info("Token cache: REDIS")
		}
	} else {
		slog.Info("Token cache: NOOP (REDIS_SECRET unset)")
	}

	// Pub/Sub
	var pubAdapter shared.Publisher
	if cfg.EnablePublish {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			slog.Error("PubSub init failed", "error", err)
			return nil, fmt.Errorf("pubsub init: %w", err)
		}
		pubAdapter = &infrapubsub.PubSubAdapter{Client: psClient}
		slog.Info("Pub/Sub: REAL (ENABLE_PUBLISH=true)")
	} else {
		pubAdapter = &infrapubsub.LogPublisher{}
		slog.Info("Pub/Sub: MOCK (LogPublisher)")
	}

	return &Service{
		DB:        database.NewFirestoreAdapter(fsClient),
		Store:     &infrastorage.StorageAdapter{Client: gcsClient},
		Warehouse: bq,
		Metrics:   &warehouse.MetricsAdapter{Warehouse: bq, Schemas: schemas, Env: cfg.Env},
		Secrets:   sec,
		Cache:     tokenCache,
		Pub:       pubAdapter,
		Schemas:   schemas,
		Config:    cfg,
	}, nil
}
