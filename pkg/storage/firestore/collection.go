package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

// Collection is a typed wrapper around a Firestore collection. Documents are
// mapped onto T through its firestore struct tags.
type Collection[T any] struct {
	Ref *firestore.CollectionRef
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.Doc(id)}
}

// IDs lists the document ids in the collection.
func (c *Collection[T]) IDs(ctx context.Context) ([]string, error) {
	refs, err := c.Ref.DocumentRefs(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

type DocumentRef[T any] struct {
	Ref *firestore.DocumentRef
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out T
	if err := snap.DataTo(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	_, err := d.Ref.Set(ctx, data)
	return err
}
