// Package pipeline sequences the three ETL stages for one user and drives
// batch runs across all users.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/bronze"
	"github.com/fitnessllm/dataplatform/pkg/etl/silver"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/pubsub"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

const eventSource = "//dataplatform/pipeline"

// RunCompleted is the payload published after a successful full ETL run.
type RunCompleted struct {
	RunID       string `json:"run_id"`
	UID         string `json:"uid"`
	DataSource  string `json:"data_source"`
	CompletedAt string `json:"completed_at"`
}

// Orchestrator runs INGEST, BRONZE and SILVER in order for one (user, data
// source) pair. There is no persisted state machine, only in-process
// sequencing: an ingest failure aborts the run, a bronze failure surfaces to
// the caller rather than silently continuing to silver.
type Orchestrator struct {
	DB        shared.Database
	Ingestors map[types.DataSource]shared.Ingestor
	Bronze    *bronze.Engine
	Silver    *silver.Engine
	Pub       shared.Publisher

	// StageTimeout bounds each stage; 0 disables the deadline.
	StageTimeout time.Duration
	Logger       *slog.Logger
}

// connection resolves and validates the user's provider connection document.
func (o *Orchestrator) connection(ctx context.Context, uid string, source types.DataSource) (*types.StreamConnection, error) {
	conn, err := o.DB.GetStreamConnection(ctx, uid, source)
	if err != nil {
		return nil, fmt.Errorf("user %s has no %s connection: %w", uid, source, err)
	}
	if conn.Athlete.ID == 0 {
		return nil, fmt.Errorf("user %s has incomplete %s connection: missing athlete id", uid, source)
	}
	return conn, nil
}

func (o *Orchestrator) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.StageTimeout)
	}
	return context.WithCancel(ctx)
}

// Ingest downloads raw provider JSON for the user.
func (o *Orchestrator) Ingest(ctx context.Context, uid string, source types.DataSource) error {
	ingestor, ok := o.Ingestors[source]
	if !ok {
		return fmt.Errorf("unsupported data source: %s", source)
	}
	conn, err := o.connection(ctx, uid, source)
	if err != nil {
		return err
	}

	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	if err := ingestor.Ingest(sctx, uid, conn); err != nil {
		return fmt.Errorf("failed to get data from %s API: %w", source, err)
	}
	return nil
}

// BronzeETL loads the user's stored artifacts into the bronze layer,
// optionally restricted to the given stream types.
func (o *Orchestrator) BronzeETL(ctx context.Context, uid string, source types.DataSource, streams []types.StreamType) error {
	conn, err := o.connection(ctx, uid, source)
	if err != nil {
		return err
	}

	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	if err := o.Bronze.Run(sctx, conn.AthleteID(), source, streams); err != nil {
		return fmt.Errorf("bronze etl for user %s: %w", uid, err)
	}
	return nil
}

// SilverETL refreshes the user's curated tables from bronze.
func (o *Orchestrator) SilverETL(ctx context.Context, uid string, source types.DataSource) error {
	conn, err := o.connection(ctx, uid, source)
	if err != nil {
		return err
	}

	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	if err := o.Silver.Run(sctx, conn.AthleteID(), source); err != nil {
		return fmt.Errorf("silver etl for user %s: %w", uid, err)
	}
	return nil
}

// FullETL runs all three stages in order and publishes a completion event on
// success.
func (o *Orchestrator) FullETL(ctx context.Context, uid string, source types.DataSource, streams []types.StreamType) error {
	if err := o.Ingest(ctx, uid, source); err != nil {
		return err
	}
	if err := o.BronzeETL(ctx, uid, source, streams); err != nil {
		return err
	}
	if err := o.SilverETL(ctx, uid, source); err != nil {
		return err
	}

	o.Logger.Info("Full ETL process completed successfully", "uid", uid, "data_source", source)
	o.publishCompletion(ctx, uid, source)
	return nil
}

func (o *Orchestrator) publishCompletion(ctx context.Context, uid string, source types.DataSource) {
	if o.Pub == nil {
		return
	}
	payload := RunCompleted{
		RunID:       uuid.NewString(),
		UID:         uid,
		DataSource:  string(source),
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	e, err := pubsub.NewCloudEvent(eventSource, "com.fitnessllm.etl.run.completed", payload)
	if err != nil {
		o.Logger.Warn("Failed to build completion event", "error", err)
		return
	}
	if _, err := o.Pub.PublishCloudEvent(ctx, shared.TopicETLRunCompleted, e); err != nil {
		o.Logger.Warn("Failed to publish completion event", "error", err)
	}
}
