package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) Users() *Collection[types.UserRecord] {
	return &Collection[types.UserRecord]{
		Ref: c.fs.Collection(shared.CollectionUsers),
	}
}

// StreamConnections are sub-collections of Users: users/{uid}/stream/{provider}.
// One document per connected provider, holding encrypted tokens and the
// provider-side athlete identity.
func (c *Client) StreamConnections(uid string) *Collection[types.StreamConnection] {
	return &Collection[types.StreamConnection]{
		Ref: c.fs.Collection(shared.CollectionUsers).Doc(uid).Collection(shared.CollectionStream),
	}
}
