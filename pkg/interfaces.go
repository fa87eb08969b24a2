package shared

import (
	"context"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	GetUser(ctx context.Context, uid string) (*types.UserRecord, error)
	GetStreamConnection(ctx context.Context, uid string, source types.DataSource) (*types.StreamConnection, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// --- Warehouse Interfaces ---

// Warehouse is the analytical store. Append is an append-only load with an
// explicit schema; Run executes one DML statement; RunAll executes several
// inside a single multi-statement transaction.
type Warehouse interface {
	Append(ctx context.Context, table string, schema types.Schema, rows []types.Row) error
	Run(ctx context.Context, stmt string) error
	RunAll(ctx context.Context, stmts []string) error
	QueryStrings(ctx context.Context, query string) ([]string, error)
}

// MetricsStore persists load-attempt metrics and answers the dedup queries
// derived from them. Keeping the processed-set lookup here makes the metrics
// table's double duty (audit log and dedup index) an explicit contract.
type MetricsStore interface {
	Insert(ctx context.Context, metrics []types.Metrics) error
	// ListProcessedActivities returns activity ids with a SUCCESS row for the
	// (athlete, source, stream) triple.
	ListProcessedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error)
	// ListExhaustedActivities returns activity ids that have failed at least
	// maxAttempts times without ever succeeding.
	ListExhaustedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, maxAttempts int) ([]string, error)
	LatestActivityDate(ctx context.Context, athleteID string, source types.DataSource) (time.Time, error)
}

// --- Secrets Interfaces ---

type SecretStore interface {
	GetJSONSecret(ctx context.Context, name string) (map[string]string, error)
}

// --- Cache Interfaces ---

// TokenCache holds short-lived provider access tokens. Get returns "" with a
// nil error on a miss.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Provider Interfaces ---

// Ingestor downloads raw provider JSON for one user and lands it as
// per-activity artifacts in the object store.
type Ingestor interface {
	Ingest(ctx context.Context, uid string, conn *types.StreamConnection) error
}
