package pipeline

import (
	"context"
	"fmt"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// ProcessAllUsers runs the full ETL for every registered user. One user's
// failure is logged and swallowed so the sweep always completes; only a
// failure to enumerate users aborts it.
func (o *Orchestrator) ProcessAllUsers(ctx context.Context, source types.DataSource, streams []types.StreamType) error {
	uids, err := o.DB.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	var failed int
	for _, uid := range uids {
		if err := o.FullETL(ctx, uid, source, streams); err != nil {
			failed++
			o.Logger.Error("ETL run failed", "uid", uid, "data_source", source, "error", err)
			continue
		}
	}

	o.Logger.Info("Finished processing all users", "users", len(uids), "failed", failed)
	return nil
}
