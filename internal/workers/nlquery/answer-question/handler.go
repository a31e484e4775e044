// internal/workers/nlquery/answer-question/handler.go
package answerquestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/common/metrics"
	"nlquery-agent/internal/common/observability"
	"nlquery-agent/internal/common/validation"
	"nlquery-agent/internal/models"
)

const (
	TaskType = "answer-question"
)

// Answerer runs one question through the pipeline.
type Answerer interface {
	Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *errors.StandardError)
}

type Handler struct {
	config       *Config
	answerer     Answerer
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
}

func NewHandler(config *Config, answerer Answerer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		answerer:     answerer,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

// WithObservability records job outcomes on the otel meter as well.
func (h *Handler) WithObservability(o *observability.Observability) *Handler {
	h.obs = o
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	start := time.Now()
	status := "failed"
	defer func() {
		h.obs.RecordJobProcessed(ctx, status)
		h.obs.RecordJobDuration(ctx, time.Since(start), status)
	}()

	var variables map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &variables); err != nil {
		h.fail(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err)))
		return
	}

	output, err := h.execute(ctx, variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	if h.completeJob(ctx, client, job, output) {
		status = "completed"
	}
}

// execute returns an error only for failures worth retrying or rejecting the
// job outright. Query-level failures complete the job with Status FAILED.
func (h *Handler) execute(ctx context.Context, variables map[string]interface{}) (*Output, error) {
	if result := validation.ValidateAnswerRequest(variables); !result.Valid {
		return nil, errors.NewInvalidInputError(result.Error())
	}

	input := Input{}
	input.Question, _ = variables["question"].(string)
	input.Backend, _ = variables["backend"].(string)

	backend := h.config.DefaultBackend
	if strings.TrimSpace(input.Backend) != "" {
		parsed, err := models.ParseBackend(input.Backend)
		if err != nil {
			return nil, errors.NewInvalidInputError(err.Error())
		}
		backend = parsed
	}

	envelope, failure := h.answerer.Run(ctx, input.Question, backend)
	if failure != nil && failure.Retryable {
		return nil, failure
	}

	output := &Output{
		Answer:           envelope.Answer,
		GeneratedQueries: envelope.GeneratedQueries,
		RawResults:       envelope.RawResults,
		Error:            envelope.Error,
		Backend:          string(backend),
		Status:           StatusDone,
	}
	if failure != nil {
		output.Status = StatusFailed
		output.ErrorCode = string(failure.Code)
	}
	return output, nil
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	return h.execute(ctx, map[string]interface{}{
		"question": input.Question,
		"backend":  input.Backend,
	})
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) bool {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return false
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return false
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey": job.Key,
		"status": output.Status,
	})
	return true
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}
