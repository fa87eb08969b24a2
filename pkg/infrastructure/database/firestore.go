package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	storage "github.com/fitnessllm/dataplatform/pkg/storage/firestore"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetUser(ctx context.Context, uid string) (*types.UserRecord, error) {
	user, err := a.storage.Users().Doc(uid).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	return user, nil
}

func (a *FirestoreAdapter) GetStreamConnection(ctx context.Context, uid string, source types.DataSource) (*types.StreamConnection, error) {
	conn, err := a.storage.StreamConnections(uid).Doc(string(source)).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s connection for user %s: %w", source, uid, err)
	}
	return conn, nil
}

func (a *FirestoreAdapter) ListUserIDs(ctx context.Context) ([]string, error) {
	return a.storage.Users().IDs(ctx)
}
