// Package warehouse provides analytical-store operations using BigQuery.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// BigQueryAdapter implements the Warehouse interface over a BigQuery client.
// Connections are opened per logical operation by the caller; the adapter
// itself holds no state beyond the client.
type BigQueryAdapter struct {
	Client *bigquery.Client
}

// Append loads rows into dataset.table as an append-only load job with the
// given schema. Row keys not present in the schema are dropped before the
// write, so committed columns are always a subset of the registered schema.
// A job that finishes in a non-terminal state is an error.
func (a *BigQueryAdapter) Append(ctx context.Context, table string, schema types.Schema, rows []types.Row) error {
	dataset, name, err := splitTable(table)
	if err != nil {
		return err
	}

	allowed := make(map[string]bool, len(schema))
	for _, f := range schema {
		allowed[f.Name] = true
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		pruned := make(types.Row, len(row))
		for k, v := range row {
			if allowed[k] {
				pruned[k] = v
			}
		}
		if err := enc.Encode(pruned); err != nil {
			return fmt.Errorf("encode row for %s: %w", table, err)
		}
	}

	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.JSON
	source.Schema = toBigQuerySchema(schema)

	loader := a.Client.Dataset(dataset).Table(name).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load into %s: %w", table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for load into %s: %w", table, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load into %s: %w", table, err)
	}
	if status.State != bigquery.Done {
		return fmt.Errorf("load into %s finished in non-terminal state %v", table, status.State)
	}
	return nil
}

// Run executes one DML statement and waits for a terminal state.
func (a *BigQueryAdapter) Run(ctx context.Context, stmt string) error {
	job, err := a.Client.Query(stmt).Run(ctx)
	if err != nil {
		return fmt.Errorf("start statement: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for statement: %w", err)
	}
	if err := status.Err(); err != nil {
		return err
	}
	if status.State != bigquery.Done {
		return fmt.Errorf("statement finished in non-terminal state %v", status.State)
	}
	return nil
}

// RunAll executes the statements inside a single multi-statement transaction.
func (a *BigQueryAdapter) RunAll(ctx context.Context, stmts []string) error {
	script := "BEGIN TRANSACTION;\n" + strings.Join(stmts, ";\n") + ";\nCOMMIT TRANSACTION;"
	return a.Run(ctx, script)
}

// QueryStrings runs a query whose first column is string-valued and returns
// the values, skipping NULLs.
func (a *BigQueryAdapter) QueryStrings(ctx context.Context, query string) ([]string, error) {
	it, err := a.Client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	var out []string
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read query result: %w", err)
		}
		if len(row) == 0 || row[0] == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%v", row[0]))
	}
	return out, nil
}

func splitTable(table string) (dataset, name string, err error) {
	parts := strings.Split(table, ".")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("table %q must be dataset.table", table)
	}
	return parts[0], parts[1], nil
}

func toBigQuerySchema(schema types.Schema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema))
	for _, f := range schema {
		out = append(out, &bigquery.FieldSchema{
			Name:        f.Name,
			Type:        bigquery.FieldType(f.Type),
			Required:    f.Mode == "REQUIRED",
			Description: f.Description,
		})
	}
	return out
}
