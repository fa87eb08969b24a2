package warehouse

import (
	"context"
	"fmt"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/schema"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// MetricsAdapter persists load-attempt metrics and answers the dedup queries
// derived from them. The metrics table is append-only and serves as both
// audit trail and processed-set index.
type MetricsAdapter struct {
	Warehouse shared.Warehouse
	Schemas   *schema.Registry
	Env       string
}

func (a *MetricsAdapter) table() string {
	return shared.MetricsDataset(a.Env) + "." + shared.MetricsTable
}

// Insert appends one row per metrics record. Every record must carry a
// terminal status and commit timestamp by the time it reaches here.
func (a *MetricsAdapter) Insert(ctx context.Context, metrics []types.Metrics) error {
	if len(metrics) == 0 {
		return nil
	}
	metricsSchema, err := a.Schemas.Metrics()
	if err != nil {
		return err
	}
	rows := make([]types.Row, 0, len(metrics))
	for _, m := range metrics {
		if m.Status == "" || m.BQInsertTimestamp.IsZero() {
			return fmt.Errorf("metrics row for activity %s has no terminal status", m.ActivityID)
		}
		rows = append(rows, types.Row{
			"athlete_id":          m.AthleteID,
			"activity_id":         m.ActivityID,
			"data_source":         string(m.DataSource),
			"data_stream":         string(m.DataStream),
			"record_count":        m.RecordCount,
			"status":              string(m.Status),
			"bq_insert_timestamp": m.BQInsertTimestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	if err := a.Warehouse.Append(ctx, a.table(), metricsSchema, rows); err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

func (a *MetricsAdapter) ListProcessedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT activity_id
		FROM %s
		WHERE athlete_id = '%s' AND data_source = '%s' AND data_stream = '%s' AND status = '%s'`,
		a.table(), athleteID, source, stream, types.StatusSuccess)
	return a.Warehouse.QueryStrings(ctx, query)
}

func (a *MetricsAdapter) ListExhaustedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, maxAttempts int) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT activity_id
		FROM %s
		WHERE athlete_id = '%s' AND data_source = '%s' AND data_stream = '%s'
		GROUP BY activity_id
		HAVING COUNTIF(status = '%s') = 0 AND COUNTIF(status = '%s') >= %d`,
		a.table(), athleteID, source, stream, types.StatusSuccess, types.StatusFailure, maxAttempts)
	return a.Warehouse.QueryStrings(ctx, query)
}

// LatestActivityDate returns the most recent activity start date landed in
// bronze for the athlete, or the zero time when none exists.
func (a *MetricsAdapter) LatestActivityDate(ctx context.Context, athleteID string, source types.DataSource) (time.Time, error) {
	query := fmt.Sprintf(`
		SELECT CAST(MAX(start_date) AS STRING)
		FROM %s.activity
		WHERE athlete_id = '%s'`,
		shared.BronzeDataset(a.Env, source), athleteID)
	values, err := a.Warehouse.QueryStrings(ctx, query)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest activity date: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, values[0])
	if err != nil {
		// BigQuery renders timestamps without the T separator.
		ts, err = time.Parse("2006-01-02 15:04:05.999999999-07", values[0])
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse latest activity date %q: %w", values[0], err)
	}
	return ts, nil
}
