// Command dataplatform runs the ETL pipeline stages from the command line
// and serves the task-dispatch HTTP endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/etl/bronze"
	"github.com/fitnessllm/dataplatform/pkg/etl/silver"
	"github.com/fitnessllm/dataplatform/pkg/etl/transform"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/sentry"
	"github.com/fitnessllm/dataplatform/pkg/pipeline"
	"github.com/fitnessllm/dataplatform/pkg/providers/strava"
	"github.com/fitnessllm/dataplatform/pkg/server"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

const usage = `usage: dataplatform <command> [flags]

commands:
  ingest      download raw provider data for one user
  bronze-etl  load stored artifacts into the bronze layer for one user
  silver-etl  refresh the curated tables for one user
  full-etl    run ingest, bronze and silver in order for one user
  batch       run the full pipeline for every registered user
  serve       start the task-dispatch HTTP server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger("dataplatform")

	if err := sentry.Init(sentry.Config{
		DSN:         svc.Config.SentryDSN,
		Environment: svc.Config.Env,
		ServerName:  "dataplatform",
	}, logger); err != nil {
		logger.Warn("Continuing without Sentry", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	orch := newOrchestrator(svc, logger)

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(ctx, cmd, args, orch); err != nil {
		sentry.CaptureException(err, map[string]interface{}{"command": cmd}, logger)
		logger.Error("Command failed", "command", cmd, "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func newOrchestrator(svc *bootstrap.Service, logger *slog.Logger) *pipeline.Orchestrator {
	cfg := svc.Config
	return &pipeline.Orchestrator{
		DB: svc.DB,
		Ingestors: map[types.DataSource]shared.Ingestor{
			types.SourceStrava: &strava.Ingestor{
				Store:            svc.Store,
				Metrics:          svc.Metrics,
				Secrets:          svc.Secrets,
				Cache:            svc.Cache,
				Bucket:           cfg.RawBucket,
				EncryptionSecret: cfg.EncryptionSecret,
				Logger:           logger.With("component", "ingest"),
			},
		},
		Bronze: &bronze.Engine{
			Store:      svc.Store,
			Warehouse:  svc.Warehouse,
			Metrics:    svc.Metrics,
			Schemas:    svc.Schemas,
			Transforms: transform.NewRegistry(),
			Config: bronze.Config{
				Env:         cfg.Env,
				Bucket:      cfg.RawBucket,
				Workers:     cfg.Workers,
				Sample:      cfg.Sample,
				MaxAttempts: cfg.MaxAttempts,
			},
			Logger: logger.With("component", "bronze"),
		},
		Silver: &silver.Engine{
			Warehouse: svc.Warehouse,
			Env:       cfg.Env,
			Atomic:    true,
			Logger:    logger.With("component", "silver"),
		},
		Pub:          svc.Pub,
		StageTimeout: cfg.StageTimeout,
		Logger:       logger,
	}
}

func run(ctx context.Context, cmd string, args []string, orch *pipeline.Orchestrator) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	uid := fs.String("uid", "", "user id")
	source := fs.String("data-source", "strava", "data source to process")
	streamsFlag := fs.String("data-streams", "", "comma separated stream allow-list (default: all stored)")
	addr := fs.String("addr", ":8080", "listen address (serve only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src, err := types.ParseDataSource(*source)
	if err != nil {
		return err
	}
	streams, err := splitStreams(*streamsFlag)
	if err != nil {
		return err
	}

	needUID := func() error {
		if *uid == "" {
			return fmt.Errorf("%s requires -uid", cmd)
		}
		return nil
	}

	switch cmd {
	case "ingest":
		if err := needUID(); err != nil {
			return err
		}
		return orch.Ingest(ctx, *uid, src)
	case "bronze-etl":
		if err := needUID(); err != nil {
			return err
		}
		return orch.BronzeETL(ctx, *uid, src, streams)
	case "silver-etl":
		if err := needUID(); err != nil {
			return err
		}
		return orch.SilverETL(ctx, *uid, src)
	case "full-etl":
		if err := needUID(); err != nil {
			return err
		}
		return orch.FullETL(ctx, *uid, src, streams)
	case "batch":
		return orch.ProcessAllUsers(ctx, src, streams)
	case "serve":
		srv := &server.Server{Orch: orch, Logger: orch.Logger}
		orch.Logger.Info("Listening", "addr", *addr)
		return http.ListenAndServe(*addr, srv.Router())
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func splitStreams(raw string) ([]types.StreamType, error) {
	if raw == "" {
		return nil, nil
	}
	var streams []types.StreamType
	for _, name := range strings.Split(raw, ",") {
		st, err := types.ParseStreamType(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, nil
}
