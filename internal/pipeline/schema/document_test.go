package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
)

type failingStore struct {
	*docstore.MemoryStore
	listErr   error
	sampleErr error
}

func (s failingStore) ListCollections(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListCollections(ctx)
}

func (s failingStore) SampleOne(ctx context.Context, collection string) (docstore.Document, bool, error) {
	if s.sampleErr != nil {
		return nil, false, s.sampleErr
	}
	return s.MemoryStore.SampleOne(ctx, collection)
}

func TestDocumentBuilderMarksEmptyCollections(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("users", docstore.Document{"_id": docstore.ID("65a1f0c2e4b0a1b2c3d4e5f1"), "name": "Alice"})
	store.CreateCollection("orders")

	snapshot, err := NewDocumentBuilder(store).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.BackendDocument, snapshot.Backend)
	assert.Equal(t, []string{"orders", "users"}, snapshot.Names())

	orders, ok := snapshot.Entity("orders")
	require.True(t, ok)
	assert.True(t, orders.Empty)
	assert.Equal(t, models.EmptyCollectionMarker, orders.Shape)

	users, _ := snapshot.Entity("users")
	assert.False(t, users.Empty)
	assert.JSONEq(t, `{"_id":"65a1f0c2e4b0a1b2c3d4e5f1","name":"Alice"}`, users.Shape)
}

func TestDocumentBuilderUnavailable(t *testing.T) {
	store := failingStore{MemoryStore: docstore.NewMemoryStore(), listErr: errors.New("server selection timeout")}

	_, err := NewDocumentBuilder(store).Build(context.Background())
	assert.ErrorIs(t, err, ErrSchemaUnavailable)
}

func TestDocumentBuilderSampleFailureKeepsCollection(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Insert("users", docstore.Document{"name": "Alice"})
	store := failingStore{MemoryStore: mem, sampleErr: errors.New("unauthorized")}

	snapshot, err := NewDocumentBuilder(store).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Entities, 1)
	assert.Equal(t, "users", snapshot.Entities[0].Name)
	assert.False(t, snapshot.Entities[0].Empty)
	assert.Equal(t, models.SampleUnavailableMarker, snapshot.Entities[0].Shape)
}
