package silver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunAtomicExecutesDeleteThenInsertPerTemplate(t *testing.T) {
	var batches [][]string
	wh := &mocks.MockWarehouse{
		RunAllFunc: func(ctx context.Context, stmts []string) error {
			batches = append(batches, stmts)
			return nil
		},
		RunFunc: func(ctx context.Context, stmt string) error {
			t.Error("atomic mode must not issue standalone statements")
			return nil
		},
	}
	e := &Engine{Warehouse: wh, Env: "dev", Atomic: true, Logger: discardLogger()}

	err := e.Run(context.Background(), "12345", types.SourceStrava)
	require.NoError(t, err)

	names, err := templateNames()
	require.NoError(t, err)
	require.Len(t, batches, len(names))

	for i, stmts := range batches {
		require.Len(t, stmts, 2)
		target := "dev_silver_strava." + strings.TrimSuffix(names[i], ".sql")
		assert.Equal(t, "DELETE FROM "+target+" WHERE athlete_id = '12345'", stmts[0])
		assert.True(t, strings.HasPrefix(stmts[1], "INSERT INTO "+target+"\n"), "insert targets %s: %s", target, stmts[1])
		assert.Contains(t, stmts[1], "dev_bronze_strava.", "insert reads from the bronze dataset")
		assert.Contains(t, stmts[1], "'12345'", "insert is scoped to the athlete")
	}
}

func TestRunNonAtomicIssuesSeparateStatements(t *testing.T) {
	var stmts []string
	wh := &mocks.MockWarehouse{
		RunFunc: func(ctx context.Context, stmt string) error {
			stmts = append(stmts, stmt)
			return nil
		},
		RunAllFunc: func(ctx context.Context, batch []string) error {
			t.Error("non-atomic mode must not use multi-statement execution")
			return nil
		},
	}
	e := &Engine{Warehouse: wh, Env: "dev", Atomic: false, Logger: discardLogger()}

	err := e.Run(context.Background(), "12345", types.SourceStrava)
	require.NoError(t, err)

	names, err := templateNames()
	require.NoError(t, err)
	require.Len(t, stmts, 2*len(names))
	assert.True(t, strings.HasPrefix(stmts[0], "DELETE FROM "))
	assert.True(t, strings.HasPrefix(stmts[1], "INSERT INTO "))
}

func TestRunTemplateFailureDoesNotStopOthers(t *testing.T) {
	var succeeded []string
	first := true
	wh := &mocks.MockWarehouse{
		RunAllFunc: func(ctx context.Context, stmts []string) error {
			if first {
				first = false
				return errors.New("query failed")
			}
			succeeded = append(succeeded, stmts[1])
			return nil
		},
	}
	e := &Engine{Warehouse: wh, Env: "dev", Atomic: true, Logger: discardLogger()}

	err := e.Run(context.Background(), "12345", types.SourceStrava)
	require.NoError(t, err)

	names, err := templateNames()
	require.NoError(t, err)
	assert.Len(t, succeeded, len(names)-1, "remaining templates still run")
}

func TestRenderRejectsUnknownFields(t *testing.T) {
	for _, name := range mustTemplateNames(t) {
		body, err := render(name, params{Schema: "dev_bronze_strava", AthleteID: "12345"})
		require.NoError(t, err, "template %s", name)
		assert.NotContains(t, body, "{{", "template %s rendered incompletely", name)
	}
}

func mustTemplateNames(t *testing.T) []string {
	t.Helper()
	names, err := templateNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	return names
}

func TestValidateSelectAcceptsEmbeddedTemplates(t *testing.T) {
	for _, name := range mustTemplateNames(t) {
		body, err := render(name, params{Schema: "dev_bronze_strava", AthleteID: "12345"})
		require.NoError(t, err)
		assert.NoError(t, ValidateSelect(body), "template %s", name)
	}
}

func TestValidateSelect(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"plain select", "SELECT a, b FROM t WHERE athlete_id = '1'", false},
		{"with clause", "WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"lowercase select", "select 1", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"keyword inside string literal", "SELECT 'DROP TABLE users' AS note FROM t", false},
		{"keyword inside comment", "SELECT 1 -- DELETE everything\nFROM t", false},
		{"keyword inside backticks", "SELECT `insert` FROM t", false},
		{"empty", "   ", true},
		{"delete statement", "DELETE FROM t", true},
		{"insert statement", "INSERT INTO t SELECT 1", true},
		{"drop after select", "SELECT 1 FROM t UNION ALL SELECT 2; DROP TABLE t", true},
		{"merge keyword", "SELECT 1 FROM t WHERE x = 1 MERGE", true},
		{"create via second statement", "SELECT 1; CREATE TABLE x (a INT64)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelect(tt.body)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
