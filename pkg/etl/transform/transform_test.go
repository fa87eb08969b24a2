package transform

import (
	"errors"
	"testing"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

func TestSplitLatLng(t *testing.T) {
	rows := []types.Row{
		{"data": []any{float64(51.5), float64(-0.12)}, "index": int64(1)},
		{"data": []any{float64(51.6), float64(-0.13)}, "index": int64(2)},
	}

	out, err := SplitLatLng(rows)
	if err != nil {
		t.Fatalf("SplitLatLng failed: %v", err)
	}

	if out[0]["latitude"] != 51.5 || out[0]["longitude"] != -0.12 {
		t.Errorf("first row = %v", out[0])
	}
	if _, ok := out[0]["data"]; ok {
		t.Error("data column should be removed after splitting")
	}
	if out[1]["latitude"] != 51.6 {
		t.Errorf("second row = %v", out[1])
	}
}

func TestSplitLatLngNilDataPassesThrough(t *testing.T) {
	rows := []types.Row{{"data": nil, "index": int64(1)}}
	out, err := SplitLatLng(rows)
	if err != nil {
		t.Fatalf("SplitLatLng failed: %v", err)
	}
	if _, ok := out[0]["latitude"]; ok {
		t.Error("nil data should not produce coordinates")
	}
}

func TestSplitLatLngRejectsMalformedPairs(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"scalar", float64(51.5)},
		{"triple", []any{1.0, 2.0, 3.0}},
		{"non numeric", []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitLatLng([]types.Row{{"data": tt.data}})
			if err == nil {
				t.Errorf("SplitLatLng(%v) should fail", tt.data)
			}
		})
	}
}

func TestRegistryAppliesInOrder(t *testing.T) {
	r := &Registry{funcs: map[types.StreamType][]Func{}}
	r.Register(types.StreamHeartrate, func(rows []types.Row) ([]types.Row, error) {
		rows[0]["order"] = "first"
		return rows, nil
	})
	r.Register(types.StreamHeartrate, func(rows []types.Row) ([]types.Row, error) {
		rows[0]["order"] = rows[0]["order"].(string) + ",second"
		return rows, nil
	})

	out, err := r.Apply(types.StreamHeartrate, []types.Row{{}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out[0]["order"] != "first,second" {
		t.Errorf("order = %v", out[0]["order"])
	}
}

func TestRegistryUnregisteredStreamPassesThrough(t *testing.T) {
	r := NewRegistry()
	rows := []types.Row{{"data": "120"}}
	out, err := r.Apply(types.StreamHeartrate, rows)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out[0]["data"] != "120" {
		t.Errorf("rows should pass through unchanged, got %v", out[0])
	}
}

func TestRegistryWrapsTransformErrors(t *testing.T) {
	r := &Registry{funcs: map[types.StreamType][]Func{}}
	sentinel := errors.New("boom")
	r.Register(types.StreamLatLng, func(rows []types.Row) ([]types.Row, error) {
		return nil, sentinel
	})

	_, err := r.Apply(types.StreamLatLng, []types.Row{{}})
	if !errors.Is(err, sentinel) {
		t.Errorf("Apply error = %v, want wrapped %v", err, sentinel)
	}
}
