// internal/pipeline/schema/builder.go
// Package schema builds the structural description of a store that the
// generation prompt is grounded on.
package schema

import (
	"context"
	"errors"

	"nlquery-agent/internal/models"
)

var ErrSchemaUnavailable = errors.New("SCHEMA_UNAVAILABLE")

// Builder produces a fresh snapshot on every call.
type Builder interface {
	Build(ctx context.Context) (models.SchemaSnapshot, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) (models.SchemaSnapshot, error)

func (f BuilderFunc) Build(ctx context.Context) (models.SchemaSnapshot, error) {
	return f(ctx)
}
