package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetUserFunc             func(ctx context.Context, uid string) (*types.UserRecord, error)
	GetStreamConnectionFunc func(ctx context.Context, uid string, source types.DataSource) (*types.StreamConnection, error)
	ListUserIDsFunc         func(ctx context.Context) ([]string, error)
}

func (m *MockDatabase) GetUser(ctx context.Context, uid string) (*types.UserRecord, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, uid)
	}
	return nil, fmt.Errorf("user not found")
}
func (m *MockDatabase) GetStreamConnection(ctx context.Context, uid string, source types.DataSource) (*types.StreamConnection, error) {
	if m.GetStreamConnectionFunc != nil {
		return m.GetStreamConnectionFunc(ctx, uid, source)
	}
	return nil, fmt.Errorf("connection not found")
}
func (m *MockDatabase) ListUserIDs(ctx context.Context) ([]string, error) {
	if m.ListUserIDsFunc != nil {
		return m.ListUserIDsFunc(ctx)
	}
	return nil, nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
	ListFunc  func(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}
func (m *MockBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, bucket, prefix)
	}
	return nil, nil
}

// --- Mock Warehouse ---
type MockWarehouse struct {
	AppendFunc       func(ctx context.Context, table string, schema types.Schema, rows []types.Row) error
	RunFunc          func(ctx context.Context, stmt string) error
	RunAllFunc       func(ctx context.Context, stmts []string) error
	QueryStringsFunc func(ctx context.Context, query string) ([]string, error)
}

func (m *MockWarehouse) Append(ctx context.Context, table string, schema types.Schema, rows []types.Row) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, table, schema, rows)
	}
	return nil
}
func (m *MockWarehouse) Run(ctx context.Context, stmt string) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, stmt)
	}
	return nil
}
func (m *MockWarehouse) RunAll(ctx context.Context, stmts []string) error {
	if m.RunAllFunc != nil {
		return m.RunAllFunc(ctx, stmts)
	}
	return nil
}
func (m *MockWarehouse) QueryStrings(ctx context.Context, query string) ([]string, error) {
	if m.QueryStringsFunc != nil {
		return m.QueryStringsFunc(ctx, query)
	}
	return nil, nil
}

// --- Mock Metrics Store ---
type MockMetricsStore struct {
	InsertFunc                  func(ctx context.Context, metrics []types.Metrics) error
	ListProcessedActivitiesFunc func(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error)
	ListExhaustedActivitiesFunc func(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, maxAttempts int) ([]string, error)
	LatestActivityDateFunc      func(ctx context.Context, athleteID string, source types.DataSource) (time.Time, error)
}

func (m *MockMetricsStore) Insert(ctx context.Context, metrics []types.Metrics) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, metrics)
	}
	return nil
}
func (m *MockMetricsStore) ListProcessedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType) ([]string, error) {
	if m.ListProcessedActivitiesFunc != nil {
		return m.ListProcessedActivitiesFunc(ctx, athleteID, source, stream)
	}
	return nil, nil
}
func (m *MockMetricsStore) ListExhaustedActivities(ctx context.Context, athleteID string, source types.DataSource, stream types.StreamType, maxAttempts int) ([]string, error) {
	if m.ListExhaustedActivitiesFunc != nil {
		return m.ListExhaustedActivitiesFunc(ctx, athleteID, source, stream, maxAttempts)
	}
	return nil, nil
}
func (m *MockMetricsStore) LatestActivityDate(ctx context.Context, athleteID string, source types.DataSource) (time.Time, error) {
	if m.LatestActivityDateFunc != nil {
		return m.LatestActivityDateFunc(ctx, athleteID, source)
	}
	return time.Time{}, nil
}

// --- Mock Secrets ---
type MockSecretStore struct {
	GetJSONSecretFunc func(ctx context.Context, name string) (map[string]string, error)
}

func (m *MockSecretStore) GetJSONSecret(ctx context.Context, name string) (map[string]string, error) {
	if m.GetJSONSecretFunc != nil {
		return m.GetJSONSecretFunc(ctx, name)
	}
	return map[string]string{}, nil
}

// --- Mock Token Cache ---
type MockTokenCache struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key, value string, ttl time.Duration) error
}

func (m *MockTokenCache) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", nil
}
func (m *MockTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Ingestor ---
type MockIngestor struct {
	IngestFunc func(ctx context.Context, uid string, conn *types.StreamConnection) error
}

func (m *MockIngestor) Ingest(ctx context.Context, uid string, conn *types.StreamConnection) error {
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, uid, conn)
	}
	return nil
}
