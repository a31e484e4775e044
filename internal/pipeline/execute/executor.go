// internal/pipeline/execute/executor.go
// Package execute runs generated artifacts against a store and normalizes the outcome.
package execute

import (
	"context"

	"nlquery-agent/internal/models"
)

// Executor never returns an error: every failure becomes an Error outcome.
type Executor interface {
	Execute(ctx context.Context, artifact models.GeneratedArtifact) models.ExecutionOutcome
}
