// Package pipeline sequences schema, generation, extraction, execution and
// interpretation for one question and assembles the response envelope.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/genai"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/common/metrics"
	"nlquery-agent/internal/common/observability"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/pipeline/execute"
	"nlquery-agent/internal/pipeline/extract"
	"nlquery-agent/internal/pipeline/prompt"
	"nlquery-agent/internal/pipeline/schema"
	"nlquery-agent/internal/pipeline/serialize"
)

// State is a step of one run.
type State string

const (
	StateSchema    State = "SCHEMA"
	StateGenerate  State = "GENERATE"
	StateExtract   State = "EXTRACT"
	StateExecute   State = "EXECUTE"
	StateInterpret State = "INTERPRET"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Canned answers returned alongside an error.
const (
	AnswerExtractionFailed = "I could not generate a valid query for that question."
	AnswerUnexpected       = "An unexpected error occurred."
	answerExecutionPrefix  = "Error executing the query: "
)

// Strategy is the per-backend pair of store-facing stages.
type Strategy struct {
	Schema   schema.Builder
	Executor execute.Executor
}

type Config struct {
	Strategies    map[models.Backend]Strategy
	Composer      *prompt.Composer
	Completion    genai.Client
	ModelOptions  genai.Options
	Observability *observability.Observability
}

// Pipeline is safe for concurrent use; runs share only the store handles.
type Pipeline struct {
	strategies map[models.Backend]Strategy
	composer   *prompt.Composer
	completion genai.Client
	options    genai.Options
	obs        *observability.Observability
	tracer     trace.Tracer
	logger     logger.Logger
}

func New(cfg Config, log logger.Logger) *Pipeline {
	composer := cfg.Composer
	if composer == nil {
		composer = prompt.NewComposer("", 0, "")
	}
	strategies := make(map[models.Backend]Strategy, len(cfg.Strategies))
	for b, s := range cfg.Strategies {
		strategies[b] = s
	}
	return &Pipeline{
		strategies: strategies,
		composer:   composer,
		completion: cfg.Completion,
		options:    cfg.ModelOptions,
		obs:        cfg.Observability,
		tracer:     cfg.Observability.Tracer(),
		logger:     log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Backends lists the configured backends in a stable order.
func (p *Pipeline) Backends() []models.Backend {
	out := make([]models.Backend, 0, len(p.strategies))
	for b := range p.strategies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Pipeline) Supports(backend models.Backend) bool {
	_, ok := p.strategies[backend]
	return ok
}

// Describe builds the schema snapshot for a backend without running a question.
func (p *Pipeline) Describe(ctx context.Context, backend models.Backend) (models.SchemaSnapshot, error) {
	strategy, ok := p.strategies[backend]
	if !ok {
		return models.SchemaSnapshot{}, apperrors.NewBackendNotConfiguredError(string(backend))
	}
	snapshot, err := strategy.Schema.Build(ctx)
	if err != nil {
		return models.SchemaSnapshot{}, apperrors.NewSchemaUnavailableError(err)
	}
	return snapshot, nil
}

// Answer runs one question and always returns a well-formed envelope.
func (p *Pipeline) Answer(ctx context.Context, question string, backend models.Backend) models.ResponseEnvelope {
	envelope, _ := p.Run(ctx, question, backend)
	return envelope
}

// Run is Answer plus the structured failure, nil when the run reached DONE.
func (p *Pipeline) Run(ctx context.Context, question string, backend models.Backend) (envelope models.ResponseEnvelope, failure *apperrors.StandardError) {
	r := &run{
		pipeline: p,
		backend:  backend,
		started:  time.Now(),
		envelope: models.ResponseEnvelope{GeneratedQueries: []string{}, RawResults: []string{}},
		logger: p.logger.WithFields(map[string]interface{}{
			"requestId": uuid.NewString(),
			"backend":   string(backend),
		}),
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.answer", trace.WithAttributes(
		attribute.String("backend", string(backend)),
	))
	metrics.PipelineActive.WithLabelValues(string(backend)).Inc()

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(apperrors.NewInternalError(fmt.Sprintf("panic: %v", rec)))
		}
		metrics.PipelineActive.WithLabelValues(string(backend)).Dec()
		r.finish(ctx, span)
		span.End()
		envelope, failure = r.envelope, r.failure
	}()

	r.execute(ctx, question)
	return r.envelope, r.failure
}

// run carries the mutable bookkeeping of one invocation.
type run struct {
	pipeline *Pipeline
	backend  models.Backend
	state    State
	started  time.Time
	envelope models.ResponseEnvelope
	failure  *apperrors.StandardError
	logger   logger.Logger
}

func (r *run) execute(ctx context.Context, question string) {
	p := r.pipeline
	question = strings.TrimSpace(question)
	if question == "" {
		r.fail(apperrors.NewInvalidInputError("question must not be empty"))
		return
	}
	strategy, ok := p.strategies[r.backend]
	if !ok {
		r.fail(apperrors.NewBackendNotConfiguredError(string(r.backend)))
		return
	}
	if p.completion == nil {
		r.fail(apperrors.NewCompletionUnavailableError(errors.New("no completion client configured")))
		return
	}

	var snapshot models.SchemaSnapshot
	if err := r.stage(ctx, StateSchema, func(ctx context.Context) error {
		var err error
		snapshot, err = strategy.Schema.Build(ctx)
		if err != nil {
			return apperrors.NewSchemaUnavailableError(err)
		}
		return nil
	}); err != nil {
		return
	}

	var completion string
	if err := r.stage(ctx, StateGenerate, func(ctx context.Context) error {
		var err error
		completion, err = p.completion.Complete(ctx, p.composer.Generation(question, snapshot), p.options)
		if err != nil {
			return apperrors.NewCompletionUnavailableError(err)
		}
		return nil
	}); err != nil {
		return
	}

	var artifact models.GeneratedArtifact
	if err := r.stage(ctx, StateExtract, func(ctx context.Context) error {
		var err error
		artifact, err = extract.Extract(completion, r.backend)
		if err != nil {
			return apperrors.NewExtractionFailedError(err)
		}
		r.envelope.GeneratedQueries = append(r.envelope.GeneratedQueries, artifact.Source)
		return nil
	}); err != nil {
		return
	}

	var serialized string
	if err := r.stage(ctx, StateExecute, func(ctx context.Context) error {
		outcome := strategy.Executor.Execute(ctx, artifact)
		serialized = serialize.Outcome(outcome)
		r.envelope.RawResults = append(r.envelope.RawResults, serialized)
		if outcome.Failed() {
			return apperrors.NewExecutionFailedError(outcome.Message)
		}
		return nil
	}); err != nil {
		return
	}

	var answer string
	if err := r.stage(ctx, StateInterpret, func(ctx context.Context) error {
		text, err := p.completion.Complete(ctx, p.composer.Interpretation(question, artifact, serialized), p.options)
		if err != nil {
			return apperrors.NewInterpretationFailedError(err)
		}
		answer = strings.TrimSpace(text)
		if answer == "" {
			return apperrors.NewInterpretationFailedError(errors.New("empty interpretation"))
		}
		return nil
	}); err != nil {
		return
	}

	r.state = StateDone
	r.envelope.Answer = &answer
}

// stage runs fn inside a child span and records its duration. A returned
// error moves the run to FAILED.
func (r *run) stage(ctx context.Context, state State, fn func(ctx context.Context) error) error {
	r.state = state
	r.logger.Debug("stage started", map[string]interface{}{"stage": string(state)})

	stageCtx, span := r.pipeline.tracer.Start(ctx, "pipeline."+strings.ToLower(string(state)))
	defer span.End()

	start := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(start)

	metrics.StageDuration.WithLabelValues(string(r.backend), strings.ToLower(string(state))).Observe(elapsed.Seconds())
	r.pipeline.obs.RecordStage(ctx, string(r.backend), strings.ToLower(string(state)), elapsed)

	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	stdErr, ok := apperrors.AsStandardError(err)
	if !ok {
		stdErr = apperrors.NewInternalError(err.Error())
	}
	r.fail(stdErr)
	return err
}

func (r *run) fail(stdErr *apperrors.StandardError) {
	failedAt := r.state
	r.state = StateFailed
	r.failure = stdErr
	stdErr.WithMetadata("stage", string(failedAt))

	msg := stdErr.Human()
	r.envelope.Error = &msg
	r.envelope.Answer = cannedAnswer(stdErr)
}

func cannedAnswer(stdErr *apperrors.StandardError) *string {
	var answer string
	switch stdErr.Code {
	case apperrors.ErrCodeExtractionFailed:
		answer = AnswerExtractionFailed
	case apperrors.ErrCodeExecutionFailed:
		answer = answerExecutionPrefix + stdErr.Details
	case apperrors.ErrCodeInternal:
		answer = AnswerUnexpected
	default:
		return nil
	}
	return &answer
}

func (r *run) finish(ctx context.Context, span trace.Span) {
	elapsed := time.Since(r.started)
	backend := string(r.backend)
	status := strings.ToLower(string(StateDone))

	fields := map[string]interface{}{
		"durationMs":       elapsed.Milliseconds(),
		"generatedQueries": len(r.envelope.GeneratedQueries),
	}

	if r.failure != nil {
		status = strings.ToLower(string(StateFailed))
		code := string(r.failure.Code)
		metrics.PipelineFailures.WithLabelValues(backend, code).Inc()
		span.SetStatus(codes.Error, code)
		span.SetAttributes(attribute.String("error.code", code))

		fields["errorCode"] = code
		fields["error"] = r.failure.Human()
		if stage, ok := r.failure.Metadata["stage"]; ok {
			fields["stage"] = stage
		}
		r.logger.Warn("pipeline failed", fields)
	} else {
		r.logger.Info("pipeline completed", fields)
	}

	metrics.PipelineRuns.WithLabelValues(backend, status).Inc()
	r.pipeline.obs.RecordRun(ctx, backend, status, elapsed)
}
