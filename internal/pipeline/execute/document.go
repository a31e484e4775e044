// internal/pipeline/execute/document.go
package execute

import (
	"context"
	"errors"

	"nlquery-agent/internal/common/metrics"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/sandbox"
)

// DocumentExecutor evaluates expressions in the sandbox.
type DocumentExecutor struct {
	sandbox *sandbox.Sandbox
}

func NewDocumentExecutor(sb *sandbox.Sandbox) *DocumentExecutor {
	return &DocumentExecutor{sandbox: sb}
}

func (e *DocumentExecutor) Execute(ctx context.Context, artifact models.GeneratedArtifact) models.ExecutionOutcome {
	value, err := e.sandbox.Run(ctx, artifact.Source)
	if err != nil {
		switch {
		case errors.Is(err, sandbox.ErrBudgetExceeded):
			metrics.SandboxRuns.WithLabelValues(metrics.SandboxBudget).Inc()
		case errors.Is(err, sandbox.ErrNoResult):
			metrics.SandboxRuns.WithLabelValues(metrics.SandboxNoResult).Inc()
		default:
			metrics.SandboxRuns.WithLabelValues(metrics.SandboxError).Inc()
		}
		return models.ErrorOutcome(err.Error())
	}

	metrics.SandboxRuns.WithLabelValues(metrics.SandboxOK).Inc()
	return OutcomeFromValue(value)
}

// OutcomeFromValue maps a sandbox value onto an outcome. Lists of documents
// and single documents are rows; everything else is a scalar.
func OutcomeFromValue(v interface{}) models.ExecutionOutcome {
	switch t := v.(type) {
	case map[string]interface{}:
		return models.RowsOutcome([]models.Record{t})
	case []interface{}:
		records := make([]models.Record, 0, len(t))
		for _, item := range t {
			doc, ok := item.(map[string]interface{})
			if !ok {
				return models.ScalarOutcome(v)
			}
			records = append(records, doc)
		}
		return models.RowsOutcome(records)
	}
	return models.ScalarOutcome(v)
}
