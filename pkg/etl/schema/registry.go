// Package schema loads the declarative column catalogs enforced on every
// warehouse write. One JSON catalog per schema name; most series streams
// share the generic catalog.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

//go:embed catalogs/*.json
var catalogs embed.FS

// metricsCatalog is the schema for the shared metrics table, outside the
// per-stream namespace.
const metricsCatalog = "metrics"

// Registry resolves stream types to their column schemas. Catalogs are parsed
// once and cached; the cache is read-only after load, so a Registry is safe
// for concurrent use by loader workers.
type Registry struct {
	mu    sync.Mutex
	cache map[string]types.Schema
}

func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]types.Schema)}
}

// Stream returns the schema registered for the stream type, following the
// total stream-to-catalog mapping.
func (r *Registry) Stream(st types.StreamType) (types.Schema, error) {
	return r.load(st.SchemaName())
}

// Metrics returns the schema of the load-attempt metrics table.
func (r *Registry) Metrics() (types.Schema, error) {
	return r.load(metricsCatalog)
}

func (r *Registry) load(name string) (types.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache[name]; ok {
		return s, nil
	}

	data, err := catalogs.ReadFile(fmt.Sprintf("catalogs/%s.json", name))
	if err != nil {
		return nil, fmt.Errorf("schema catalog %s: %w", name, err)
	}

	var s types.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("schema catalog %s: %w", name, err)
	}
	for _, f := range s {
		if f.Name == "" || f.Type == "" {
			return nil, fmt.Errorf("schema catalog %s: field missing name or type", name)
		}
	}

	r.cache[name] = s
	return s, nil
}
