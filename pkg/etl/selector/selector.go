// Package selector filters candidate raw artifacts down to activities that
// still need loading, using the metrics store as the dedup oracle.
package selector

import (
	"context"
	"fmt"
	"log/slog"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/artifact"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Selector computes the unprocessed candidate set for one (athlete, source,
// stream) triple. An activity whose most recent attempt failed is retried by
// default; MaxAttempts caps how often.
type Selector struct {
	Metrics shared.MetricsStore
	// Sample, when positive, truncates the candidate list before dedup
	// filtering, so sampling and dedup compose predictably.
	Sample int
	// MaxAttempts excludes activities that failed this many times without a
	// success. Zero disables the ceiling.
	MaxAttempts int
	Logger      *slog.Logger
}

// Filter returns the object names of artifacts whose activities have no
// SUCCESS metrics row yet.
func (s *Selector) Filter(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, objects []string) ([]string, error) {
	if s.Sample > 0 && len(objects) > s.Sample {
		s.Logger.Info("Sampling candidate artifacts", "stream", stream, "sample", s.Sample)
		objects = objects[:s.Sample]
	}

	processed, err := s.Metrics.ListProcessedActivities(ctx, athleteID, source, stream)
	if err != nil {
		return nil, fmt.Errorf("list processed activities for %s: %w", stream, err)
	}
	s.Logger.Info("Extracted processed activity ids", "stream", stream, "count", len(processed))

	skip := make(map[string]bool, len(processed))
	for _, id := range processed {
		skip[id] = true
	}

	if s.MaxAttempts > 0 {
		exhausted, err := s.Metrics.ListExhaustedActivities(ctx, athleteID, source, stream, s.MaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("list exhausted activities for %s: %w", stream, err)
		}
		if len(exhausted) > 0 {
			s.Logger.Warn("Skipping activities past the attempt ceiling", "stream", stream, "count", len(exhausted))
		}
		for _, id := range exhausted {
			skip[id] = true
		}
	}

	var remaining []string
	for _, obj := range objects {
		id, err := artifact.ActivityID(obj)
		if err != nil {
			s.Logger.Warn("Skipping unrecognized object", "object", obj, "error", err)
			continue
		}
		if !skip[id] {
			remaining = append(remaining, obj)
		}
	}
	return remaining, nil
}
