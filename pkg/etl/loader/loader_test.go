package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/etl/transform"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

func TestLoadActivitySummary(t *testing.T) {
	raw := []byte(`{
		"id": 15891172699,
		"name": "Morning Run",
		"distance": 8123.4,
		"athlete": {"id": 12345, "resource_state": 1},
		"map": {"summary_polyline": "abc"},
		"start_latlng": [51.5, -0.12]
	}`)

	res, err := Load(raw, "12345", "15891172699", types.SourceStrava, types.StreamActivity, transform.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "15891172699", row["activity_id"], "big ids must survive as exact strings")
	assert.Equal(t, "12345", row["athlete_id"], "nested athlete.id becomes the athlete column")
	assert.Equal(t, "Morning Run", row["name"])
	assert.Equal(t, "abc", row["map_summary_polyline"], "nested objects flatten to underscore paths")
	assert.Equal(t, "[51.5,-0.12]", row["start_latlng"], "residual arrays are rendered as JSON text")
	assert.NotContains(t, row, "id")

	assert.Equal(t, 1, res.Metrics.RecordCount)
	assert.Equal(t, types.StreamActivity, res.Metrics.DataStream)
	assert.Empty(t, res.Metrics.Status, "loader must not stamp a terminal status")
}

func TestLoadAthleteSummary(t *testing.T) {
	raw := []byte(`{"id": 12345, "firstname": "Jo", "weight": 70.5}`)

	res, err := Load(raw, "12345", "0", types.SourceStrava, types.StreamAthleteSummary, transform.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "12345", row["athlete_id"])
	assert.Equal(t, "Jo", row["firstname"])
	assert.NotContains(t, row, "activity_id")
}

func TestLoadSeriesStream(t *testing.T) {
	raw := []byte(`{"data": [120, 125, 130], "original_size": 3, "series_type": "time"}`)

	res, err := Load(raw, "12345", "987", types.SourceStrava, types.StreamHeartrate, transform.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	first := res.Rows[0]
	assert.Equal(t, int64(1), first["index"], "sample index is 1-based")
	assert.Equal(t, int64(3), first["original_size"])
	assert.Equal(t, "time", first["series_type"])
	assert.Equal(t, "120", first["data"], "samples land as text in the shared column")
	assert.Equal(t, "12345", first["athlete_id"])
	assert.Equal(t, "987", first["activity_id"])

	assert.Equal(t, int64(3), res.Rows[2]["index"])
	assert.Equal(t, "130", res.Rows[2]["data"])
	assert.Equal(t, 3, res.Metrics.RecordCount)
}

func TestLoadLatLngSeriesSplitsCoordinates(t *testing.T) {
	raw := []byte(`{"data": [[51.5, -0.12], [51.6, -0.13]], "original_size": 2, "series_type": "distance"}`)

	res, err := Load(raw, "12345", "987", types.SourceStrava, types.StreamLatLng, transform.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	assert.Equal(t, 51.5, first["latitude"])
	assert.Equal(t, -0.12, first["longitude"])
	assert.NotContains(t, first, "data")
}

func TestLoadDoubleEncodedArtifact(t *testing.T) {
	raw := []byte(`"{\"data\": [1, 2], \"original_size\": 2, \"series_type\": \"time\"}"`)

	res, err := Load(raw, "12345", "987", types.SourceStrava, types.StreamTime, transform.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "1", res.Rows[0]["data"])
}

func TestLoadNullSeriesDataYieldsNoRows(t *testing.T) {
	raw := []byte(`{"data": null, "original_size": 0, "series_type": "time"}`)

	res, err := Load(raw, "12345", "987", types.SourceStrava, types.StreamCadence, transform.NewRegistry())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 0, res.Metrics.RecordCount)
}

func TestLoadMalformedArtifact(t *testing.T) {
	_, err := Load([]byte(`{not json`), "12345", "987", types.SourceStrava, types.StreamActivity, transform.NewRegistry())
	assert.Error(t, err)

	_, err = Load([]byte(`[1, 2, 3]`), "12345", "987", types.SourceStrava, types.StreamActivity, transform.NewRegistry())
	assert.Error(t, err, "summary artifacts must be JSON objects")
}

func TestCleanColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"athlete.id", "athlete_id"},
		{"map.summary_polyline", "map_summary_polyline"},
		{"  spaced  ", "spaced"},
		{"weird-chars!", "weirdchars"},
		{"already_clean_9", "already_clean_9"},
	}
	for _, tt := range tests {
		if got := CleanColumnName(tt.in); got != tt.want {
			t.Errorf("CleanColumnName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
