package shared

import (
	"fmt"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

const (
	ProjectID = "fitnessllm-project" // Can be overridden by env var in main if needed

	TopicETLRunCompleted = "topic-etl-run-completed"

	CollectionUsers  = "users"
	CollectionStream = "stream"

	// MetricsTable lives in the shared metrics dataset and records every load
	// attempt. It is the dedup index for bronze runs.
	MetricsTable = "metrics"

	// TokenCacheKeyPrefix namespaces short-lived provider access tokens in the
	// cache, keyed by provider and uid.
	TokenCacheKeyPrefix = "access_token"
)

// BronzeDataset names the append-only dataset holding lightly-transformed
// provider data, one table per stream type.
func BronzeDataset(env string, source types.DataSource) string {
	return fmt.Sprintf("%s_bronze_%s", env, source)
}

// SilverDataset names the curated dataset refreshed by the silver engine.
func SilverDataset(env string, source types.DataSource) string {
	return fmt.Sprintf("%s_silver_%s", env, source)
}

// MetricsDataset names the shared metrics dataset.
func MetricsDataset(env string) string {
	return fmt.Sprintf("%s_metrics", env)
}

// TokenCacheKey builds the cache key for a user's provider access token.
func TokenCacheKey(source types.DataSource, uid string) string {
	return fmt.Sprintf("%s:%s:%s", TokenCacheKeyPrefix, source, uid)
}
