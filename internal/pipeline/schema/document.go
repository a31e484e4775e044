// internal/pipeline/schema/document.go
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
)

// DocumentBuilder samples one document per collection. Empty collections stay
// in the snapshot with models.EmptyCollectionMarker as their shape.
type DocumentBuilder struct {
	store docstore.Store
}

func NewDocumentBuilder(store docstore.Store) *DocumentBuilder {
	return &DocumentBuilder{store: store}
}

func (b *DocumentBuilder) Build(ctx context.Context) (models.SchemaSnapshot, error) {
	names, err := b.store.ListCollections(ctx)
	if err != nil {
		return models.SchemaSnapshot{}, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}

	snapshot := models.SchemaSnapshot{
		Backend:  models.BackendDocument,
		Entities: make([]models.Entity, 0, len(names)),
	}
	for _, name := range names {
		entity := models.Entity{Name: name, Shape: models.EmptyCollectionMarker, Empty: true}

		doc, ok, err := b.store.SampleOne(ctx, name)
		if err != nil {
			// sampling is best-effort; the collection is still listed
			entity.Shape = models.SampleUnavailableMarker
			entity.Empty = false
			snapshot.Entities = append(snapshot.Entities, entity)
			continue
		}
		if ok {
			shape, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				shape = []byte(fmt.Sprintf("%v", doc))
			}
			entity.Shape = string(shape)
			entity.Empty = false
		}
		snapshot.Entities = append(snapshot.Entities, entity)
	}
	return snapshot, nil
}
