// Package transform is the registry of per-stream transform functions applied
// after raw JSON is flattened into rows. Transforms are additive: a stream
// type without registered functions passes through unchanged.
package transform

import (
	"encoding/json"
	"fmt"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Func rewrites a batch of rows for one stream type. Implementations may
// mutate and return the input slice.
type Func func(rows []types.Row) ([]types.Row, error)

// Registry holds transform functions keyed by stream type, applied in
// registration order.
type Registry struct {
	funcs map[types.StreamType][]Func
}

// NewRegistry returns a registry pre-populated with the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[types.StreamType][]Func)}
	r.Register(types.StreamLatLng, SplitLatLng)
	return r
}

func (r *Registry) Register(st types.StreamType, f Func) {
	r.funcs[st] = append(r.funcs[st], f)
}

// Apply runs the registered functions for the stream type over the rows.
func (r *Registry) Apply(st types.StreamType, rows []types.Row) ([]types.Row, error) {
	var err error
	for _, f := range r.funcs[st] {
		rows, err = f(rows)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", st, err)
		}
	}
	return rows, nil
}

// SplitLatLng decomposes the two-element coordinate pair in the data column
// into latitude and longitude scalar columns.
func SplitLatLng(rows []types.Row) ([]types.Row, error) {
	for _, row := range rows {
		v, ok := row["data"]
		if !ok || v == nil {
			continue
		}
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("expected [lat, lng] pair, got %v", v)
		}
		lat, okLat := toFloat(pair[0])
		lng, okLng := toFloat(pair[1])
		if !okLat || !okLng {
			return nil, fmt.Errorf("non-numeric coordinate pair: %v", pair)
		}
		row["latitude"] = lat
		row["longitude"] = lng
		delete(row, "data")
	}
	return rows, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
