package bronze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/etl/schema"
	"github.com/fitnessllm/dataplatform/pkg/etl/transform"
	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

const testAthlete = "12345"

// harness collects everything a bronze run touches so each test can assert
// on writes and metrics after the fact.
type harness struct {
	engine  *Engine
	store   *mocks.MockBlobStore
	metrics *mocks.MockMetricsStore

	mu       sync.Mutex
	appends  map[string][]types.Row
	inserted []types.Metrics
}

func newHarness(t *testing.T, artifacts map[string]string) *harness {
	t.Helper()
	h := &harness{appends: make(map[string][]types.Row)}

	h.store = &mocks.MockBlobStore{
		ListFunc: func(ctx context.Context, bucket, prefix string) ([]string, error) {
			var out []string
			for object := range artifacts {
				if strings.HasPrefix(object, prefix) {
					out = append(out, object)
				}
			}
			return out, nil
		},
		ReadFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			raw, ok := artifacts[object]
			if !ok {
				return nil, fmt.Errorf("object %s not found", object)
			}
			return []byte(raw), nil
		},
	}

	h.metrics = &mocks.MockMetricsStore{
		InsertFunc: func(ctx context.Context, metrics []types.Metrics) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.inserted = append(h.inserted, metrics...)
			return nil
		},
	}

	warehouse := &mocks.MockWarehouse{
		AppendFunc: func(ctx context.Context, table string, s types.Schema, rows []types.Row) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.appends[table] = append(h.appends[table], rows...)
			return nil
		},
	}

	h.engine = &Engine{
		Store:      h.store,
		Warehouse:  warehouse,
		Metrics:    h.metrics,
		Schemas:    schema.NewRegistry(),
		Transforms: transform.NewRegistry(),
		Config:     Config{Env: "dev", Bucket: "raw-bucket", Workers: 2},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return h
}

func heartrateObject(id string) string {
	return "strava/athlete_id=" + testAthlete + "/heartrate/activity_id=" + id + ".json"
}

func (h *harness) metricsFor(id string) []types.Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []types.Metrics
	for _, m := range h.inserted {
		if m.ActivityID == id {
			out = append(out, m)
		}
	}
	return out
}

func TestRunLoadsNewActivities(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120, 125], "original_size": 2, "series_type": "time"}`,
		heartrateObject("2"): `{"data": [110], "original_size": 1, "series_type": "time"}`,
	})

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)

	rows := h.appends["dev_bronze_strava.heartrate"]
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "2025-03-01T12:00:00Z", row["metadata_insert_timestamp"])
		assert.Equal(t, testAthlete, row["athlete_id"])
	}

	require.Len(t, h.inserted, 2)
	for _, m := range h.inserted {
		assert.Equal(t, types.StatusSuccess, m.Status)
		assert.Equal(t, types.StreamHeartrate, m.DataStream)
	}
}

func TestRunSkipsProcessedActivities(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
		heartrateObject("2"): `{"data": [121], "original_size": 1, "series_type": "time"}`,
		heartrateObject("3"): `{"data": [122], "original_size": 1, "series_type": "time"}`,
	})
	h.metrics.ListProcessedActivitiesFunc = func(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error) {
		return []string{"1"}, nil
	}

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)

	assert.Len(t, h.appends["dev_bronze_strava.heartrate"], 2)
	assert.Empty(t, h.metricsFor("1"), "already processed activity must not produce a new attempt")
	assert.Len(t, h.metricsFor("2"), 1)
	assert.Len(t, h.metricsFor("3"), 1)
}

func TestRunIsIdempotentWhenEverythingProcessed(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
	})
	h.metrics.ListProcessedActivitiesFunc = func(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error) {
		return []string{"1"}, nil
	}

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)

	assert.Empty(t, h.appends, "no warehouse writes on an all-processed run")
	assert.Empty(t, h.inserted, "no metrics rows on an all-processed run")
}

func TestRunMalformedArtifactFailsInIsolation(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
		heartrateObject("2"): `{not json`,
	})

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)

	assert.Len(t, h.appends["dev_bronze_strava.heartrate"], 1, "good artifact still commits")

	good := h.metricsFor("1")
	require.Len(t, good, 1)
	assert.Equal(t, types.StatusSuccess, good[0].Status)

	bad := h.metricsFor("2")
	require.Len(t, bad, 1)
	assert.Equal(t, types.StatusFailure, bad[0].Status)
	assert.Equal(t, 0, bad[0].RecordCount)
}

func TestRunWarehouseWriteFailureMarksAllFailed(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
		heartrateObject("2"): `{"data": [121], "original_size": 1, "series_type": "time"}`,
	})
	h.engine.Warehouse = &mocks.MockWarehouse{
		AppendFunc: func(ctx context.Context, table string, s types.Schema, rows []types.Row) error {
			return errors.New("load job failed")
		},
	}

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err, "a failed stream does not abort the run")

	require.Len(t, h.inserted, 2)
	for _, m := range h.inserted {
		assert.Equal(t, types.StatusFailure, m.Status)
	}
}

func TestRunStreamFailuresAreIsolated(t *testing.T) {
	activityObject := "strava/athlete_id=" + testAthlete + "/activity/activity_id=9.json"
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
		activityObject:       `{"id": 9, "name": "Run", "athlete": {"id": 12345}}`,
	})
	h.engine.Warehouse = &mocks.MockWarehouse{
		AppendFunc: func(ctx context.Context, table string, s types.Schema, rows []types.Row) error {
			if strings.HasSuffix(table, ".activity") {
				return errors.New("load job failed")
			}
			h.mu.Lock()
			defer h.mu.Unlock()
			h.appends[table] = append(h.appends[table], rows...)
			return nil
		},
	}

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)

	assert.Len(t, h.appends["dev_bronze_strava.heartrate"], 1)

	hr := h.metricsFor("1")
	require.Len(t, hr, 1)
	assert.Equal(t, types.StatusSuccess, hr[0].Status)

	act := h.metricsFor("9")
	require.Len(t, act, 1)
	assert.Equal(t, types.StatusFailure, act[0].Status)
}

func TestRunAllowListRestrictsStreams(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
		"strava/athlete_id=" + testAthlete + "/watts/activity_id=1.json": `{"data": [200], "original_size": 1, "series_type": "time"}`,
	})

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, []types.StreamType{types.StreamHeartrate})
	require.NoError(t, err)

	assert.Contains(t, h.appends, "dev_bronze_strava.heartrate")
	assert.NotContains(t, h.appends, "dev_bronze_strava.watts")
}

func TestRunUnstoredStreamRequestIsFatal(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
	})

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, []types.StreamType{types.StreamWatts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watts")
	assert.Empty(t, h.appends, "a configuration error must not trigger partial work")
}

func TestRunMetricsInsertFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t, map[string]string{
		heartrateObject("1"): `{"data": [120], "original_size": 1, "series_type": "time"}`,
	})
	h.metrics.InsertFunc = func(ctx context.Context, metrics []types.Metrics) error {
		return errors.New("metrics table unavailable")
	}

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)
	assert.Len(t, h.appends["dev_bronze_strava.heartrate"], 1, "committed data stays committed")
}

func TestRunWorkerCountDoesNotChangeResults(t *testing.T) {
	artifacts := make(map[string]string)
	for i := 0; i < 20; i++ {
		artifacts[heartrateObject(fmt.Sprint(i))] = `{"data": [100], "original_size": 1, "series_type": "time"}`
	}

	for _, workers := range []int{1, 4} {
		h := newHarness(t, artifacts)
		h.engine.Config.Workers = workers

		err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
		require.NoError(t, err)
		assert.Len(t, h.appends["dev_bronze_strava.heartrate"], 20, "workers=%d", workers)
		assert.Len(t, h.inserted, 20, "workers=%d", workers)
	}
}

func TestRunSampleLimitsCandidates(t *testing.T) {
	artifacts := make(map[string]string)
	for i := 0; i < 10; i++ {
		artifacts[heartrateObject(fmt.Sprint(i))] = `{"data": [100], "original_size": 1, "series_type": "time"}`
	}
	h := newHarness(t, artifacts)
	h.engine.Config.Sample = 3

	err := h.engine.Run(context.Background(), testAthlete, types.SourceStrava, nil)
	require.NoError(t, err)
	assert.Len(t, h.inserted, 3)
}
