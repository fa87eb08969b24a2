// Package loader converts one raw provider JSON artifact into tabular rows
// plus the metrics record for the load attempt.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fitnessllm/dataplatform/pkg/etl/transform"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Result is the outcome of loading one artifact. Metrics carries no terminal
// status yet; the caller stamps it once the warehouse write resolves.
type Result struct {
	Rows    []types.Row
	Metrics types.Metrics
}

// seriesDoc is the shape of a per-sample stream artifact.
type seriesDoc struct {
	Data         []any       `json:"data"`
	OriginalSize json.Number `json:"original_size"`
	SeriesType   string      `json:"series_type"`
}

// Load flattens one artifact into rows. Summary streams (activity,
// athlete_summary) produce a single row; series streams produce one row per
// sample. Registered transforms for the stream type run after flattening.
func Load(raw []byte, athleteID, activityID string, source types.DataSource, stream types.StreamType, transforms *transform.Registry) (*Result, error) {
	metrics := types.Metrics{
		AthleteID:  athleteID,
		ActivityID: activityID,
		DataSource: source,
		DataStream: stream,
	}

	doc, err := decodeArtifact(raw)
	if err != nil {
		return nil, err
	}

	var rows []types.Row
	if stream.IsSummary() {
		rows, err = summaryRows(doc, athleteID, activityID, stream)
	} else {
		rows, err = seriesRows(doc, athleteID, activityID)
	}
	if err != nil {
		return nil, err
	}

	rows, err = transforms.Apply(stream, rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		normalizeRow(row)
	}

	metrics.RecordCount = len(rows)
	return &Result{Rows: rows, Metrics: metrics}, nil
}

// decodeArtifact parses the artifact, unwrapping one level of double
// encoding (a JSON string containing JSON) when present. Numbers are kept as
// json.Number so provider ids survive beyond float precision.
func decodeArtifact(raw []byte) (any, error) {
	var doc any
	if err := decodeNumbers(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed artifact: %w", err)
	}
	if inner, ok := doc.(string); ok {
		if err := decodeNumbers([]byte(inner), &doc); err != nil {
			return nil, fmt.Errorf("malformed double-encoded artifact: %w", err)
		}
	}
	return doc, nil
}

func decodeNumbers(raw []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// summaryRows flattens a summary document into a single row, renaming the
// provider's generic id field to the stream's identity column and coercing
// identifiers to strings.
func summaryRows(doc any, athleteID, activityID string, stream types.StreamType) ([]types.Row, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("summary artifact is not a JSON object")
	}

	row := make(types.Row)
	flatten("", obj, row)

	idColumn := "athlete_id"
	if stream == types.StreamActivity {
		idColumn = "activity_id"
	}
	if id, ok := row["id"]; ok {
		delete(row, "id")
		row[idColumn] = id
	}

	// The activity document nests the owning athlete as athlete.id, which
	// flattens to athlete_id after sanitation.
	if _, ok := row["athlete_id"]; !ok {
		row["athlete_id"] = athleteID
	}
	row["athlete_id"] = asString(row["athlete_id"])
	if stream == types.StreamActivity {
		if _, ok := row["activity_id"]; !ok {
			row["activity_id"] = activityID
		}
		row["activity_id"] = asString(row["activity_id"])
	}
	return []types.Row{row}, nil
}

// seriesRows expands a series document into one row per sample with a
// 1-based index and the identity columns.
func seriesRows(doc any, athleteID, activityID string) ([]types.Row, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("series artifact is not a JSON object")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("series artifact has unexpected shape: %w", err)
	}
	var series seriesDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&series); err != nil {
		return nil, fmt.Errorf("series artifact has unexpected shape: %w", err)
	}
	originalSize, _ := series.OriginalSize.Int64()

	rows := make([]types.Row, 0, len(series.Data))
	for i, sample := range series.Data {
		rows = append(rows, types.Row{
			"index":         int64(i + 1),
			"original_size": originalSize,
			"series_type":   series.SeriesType,
			"data":          sample,
			"athlete_id":    athleteID,
			"activity_id":   activityID,
		})
	}
	return rows, nil
}

// flatten collapses nested objects into dot paths; keys are sanitized for
// warehouse column naming as they are emitted.
func flatten(prefix string, v any, out types.Row) {
	obj, ok := v.(map[string]any)
	if !ok {
		out[CleanColumnName(prefix)] = v
		return
	}
	for k, child := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, child, out)
	}
}

// normalizeRow stringifies values the warehouse cannot hold natively:
// remaining arrays and objects become their JSON text, residual scalar data
// values are rendered as text for the shared generic schema.
func normalizeRow(row types.Row) {
	for k, v := range row {
		switch val := v.(type) {
		case []any, map[string]any:
			if text, err := json.Marshal(val); err == nil {
				row[k] = string(text)
			} else {
				row[k] = fmt.Sprintf("%v", val)
			}
		}
	}
	if v, ok := row["data"]; ok && v != nil {
		row["data"] = asString(v)
	}
}

// CleanColumnName sanitizes a provider field name for warehouse use: dots
// become underscores, other non-alphanumerics are stripped, whitespace is
// trimmed.
func CleanColumnName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '.':
			b.WriteRune('_')
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}
