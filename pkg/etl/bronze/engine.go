// Package bronze orchestrates the raw-artifact to warehouse load for one
// athlete: dedup selection, parallel file loading, schema enforcement and the
// append-only write, with metrics for every load attempt.
package bronze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/artifact"
	"github.com/fitnessllm/dataplatform/pkg/etl/loader"
	"github.com/fitnessllm/dataplatform/pkg/etl/schema"
	"github.com/fitnessllm/dataplatform/pkg/etl/selector"
	"github.com/fitnessllm/dataplatform/pkg/etl/transform"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Config carries the environment-level knobs for one bronze run.
type Config struct {
	Env    string
	Bucket string
	// Workers bounds the file-loading pool; 1 means sequential.
	Workers int
	// Sample, when positive, truncates each stream's candidate list.
	Sample int
	// MaxAttempts caps retries of FAILURE-marked activities; 0 disables.
	MaxAttempts int
}

// Engine loads one athlete's raw artifacts into the bronze layer.
type Engine struct {
	Store      shared.BlobStore
	Warehouse  shared.Warehouse
	Metrics    shared.MetricsStore
	Schemas    *schema.Registry
	Transforms *transform.Registry
	Config     Config
	Logger     *slog.Logger

	// Now is the commit-timestamp source; tests may pin it.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) workers() int {
	if e.Config.Workers > 1 {
		return e.Config.Workers
	}
	return 1
}

// Run processes every stream type with stored artifacts for the athlete. A
// non-empty allow-list restricts processing to those streams; requesting a
// stream that was never stored is a configuration error and fatal for the
// run. Failures within one stream type never abort the others.
func (e *Engine) Run(ctx context.Context, athleteID string, source types.DataSource, only []types.StreamType) error {
	prefix := artifact.AthletePrefix(source, athleteID)
	objects, err := e.Store.List(ctx, e.Config.Bucket, prefix)
	if err != nil {
		return fmt.Errorf("list artifacts for athlete %s: %w", athleteID, err)
	}

	streams := artifact.Streams(objects, prefix)
	if len(only) > 0 {
		streams, err = restrict(streams, only)
		if err != nil {
			return err
		}
	}

	for _, stream := range streams {
		e.Logger.Info("Loading stream", "stream", stream, "athlete_id", athleteID)
		e.runStream(ctx, athleteID, source, stream, objects)
	}
	return nil
}

// restrict intersects the stored streams with the caller's allow-list,
// preserving the requested order.
func restrict(stored, only []types.StreamType) ([]types.StreamType, error) {
	available := make(map[types.StreamType]bool, len(stored))
	for _, st := range stored {
		available[st] = true
	}
	out := make([]types.StreamType, 0, len(only))
	for _, st := range only {
		if !available[st] {
			return nil, fmt.Errorf("requested stream %q has no stored artifacts", st)
		}
		out = append(out, st)
	}
	return out, nil
}

// runStream executes the full select-load-write cycle for one stream type.
// All failure paths end here: the engine moves on to the next stream.
func (e *Engine) runStream(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, objects []string) {
	streamPrefix := artifact.StreamPrefix(source, athleteID, stream)
	var streamObjects []string
	for _, obj := range objects {
		if strings.HasPrefix(obj, streamPrefix) {
			streamObjects = append(streamObjects, obj)
		}
	}

	sel := &selector.Selector{
		Metrics:     e.Metrics,
		Sample:      e.Config.Sample,
		MaxAttempts: e.Config.MaxAttempts,
		Logger:      e.Logger,
	}
	candidates, err := sel.Filter(ctx, athleteID, source, stream, streamObjects)
	if err != nil {
		e.Logger.Error("Failed to select candidates", "stream", stream, "error", err)
		return
	}
	if len(candidates) == 0 {
		e.Logger.Info("No new data", "stream", stream, "athlete_id", athleteID)
		return
	}

	loaded, failed := e.loadAll(ctx, athleteID, source, stream, candidates)

	timestamp := e.now()
	var metrics []types.Metrics
	for _, m := range failed {
		metrics = append(metrics, m.Finalize(types.StatusFailure, timestamp))
	}

	var rows []types.Row
	for _, res := range loaded {
		rows = append(rows, res.Rows...)
	}

	if len(loaded) > 0 {
		status := types.StatusSuccess
		if err := e.commit(ctx, source, stream, rows, timestamp); err != nil {
			e.Logger.Error("Error while inserting stream", "stream", stream, "athlete_id", athleteID, "error", err)
			status = types.StatusFailure
		}
		for _, res := range loaded {
			metrics = append(metrics, res.Metrics.Finalize(status, timestamp))
		}
	}

	// Metrics persist only once the write reached a terminal state; losing
	// them costs duplicate work on the next run, not correctness.
	if err := e.Metrics.Insert(ctx, metrics); err != nil {
		e.Logger.Error("Unable to write metrics", "stream", stream, "error", err)
	}
}

// loadAll fans file loading out across the bounded worker pool. Results keep
// candidate order; row order across files is not guaranteed downstream.
func (e *Engine) loadAll(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, candidates []string) (loaded []*loader.Result, failed []types.Metrics) {
	results := make([]*loader.Result, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, object := range candidates {
		i, object := i, object
		g.Go(func() error {
			results[i], errs[i] = e.loadOne(gctx, athleteID, source, stream, object)
			return nil
		})
	}
	_ = g.Wait()

	for i, object := range candidates {
		if errs[i] != nil {
			e.Logger.Error("Failed to load artifact", "object", object, "error", errs[i])
			activityID, idErr := artifact.ActivityID(object)
			if idErr != nil {
				activityID = object
			}
			failed = append(failed, types.Metrics{
				AthleteID:  athleteID,
				ActivityID: activityID,
				DataSource: source,
				DataStream: stream,
			})
			continue
		}
		loaded = append(loaded, results[i])
	}
	return loaded, failed
}

func (e *Engine) loadOne(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, object string) (*loader.Result, error) {
	activityID, err := artifact.ActivityID(object)
	if err != nil {
		return nil, err
	}
	raw, err := e.Store.Read(ctx, e.Config.Bucket, object)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", object, err)
	}
	return loader.Load(raw, athleteID, activityID, source, stream, e.Transforms)
}

// commit stamps the commit timestamp on every row, resolves the stream's
// schema and performs the append-only warehouse write.
func (e *Engine) commit(ctx context.Context, source types.DataSource, stream types.StreamType, rows []types.Row, timestamp time.Time) error {
	ts := timestamp.UTC().Format(time.RFC3339Nano)
	for _, row := range rows {
		row["metadata_insert_timestamp"] = ts
	}

	streamSchema, err := e.Schemas.Stream(stream)
	if err != nil {
		return err
	}

	table := shared.BronzeDataset(e.Config.Env, source) + "." + string(stream)
	return e.Warehouse.Append(ctx, table, streamSchema, rows)
}
