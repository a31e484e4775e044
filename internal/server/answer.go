package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/common/validation"
	"nlquery-agent/internal/models"
)

// Pipeline is the slice of the orchestrator the API needs.
type Pipeline interface {
	Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError)
	Describe(ctx context.Context, backend models.Backend) (models.SchemaSnapshot, error)
	Backends() []models.Backend
}

// AnswerResponse is the envelope plus request bookkeeping.
type AnswerResponse struct {
	models.ResponseEnvelope
	Backend   string `json:"backend,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId"`
}

type AnswerService struct {
	pipeline       Pipeline
	defaultBackend models.Backend
	timeout        time.Duration
	logger         logger.Logger
}

func NewAnswerService(pipeline Pipeline, defaultBackend models.Backend, timeout time.Duration, log logger.Logger) *AnswerService {
	return &AnswerService{
		pipeline:       pipeline,
		defaultBackend: defaultBackend,
		timeout:        timeout,
		logger:         log.WithFields(map[string]interface{}{"component": "answer-api"}),
	}
}

func (s *AnswerService) Register(app gin.IRouter) {
	app.POST("/answer", s.answer)
	app.GET("/schema/:backend", s.describe)
	app.GET("/backends", s.backends)
}

func (s *AnswerService) answer(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.reject(c, apperrors.NewInvalidInputError("request body must be a JSON object"))
		return
	}
	if result := validation.ValidateAnswerRequest(body); !result.Valid {
		s.reject(c, apperrors.NewInvalidInputError(result.Error()))
		return
	}

	question, _ := body["question"].(string)
	backend := s.defaultBackend
	if raw, _ := body["backend"].(string); strings.TrimSpace(raw) != "" {
		parsed, err := models.ParseBackend(raw)
		if err != nil {
			s.reject(c, apperrors.NewInvalidInputError(err.Error()))
			return
		}
		backend = parsed
	}

	ctx := c.Request.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	envelope, failure := s.pipeline.Run(ctx, question, backend)
	response := AnswerResponse{
		ResponseEnvelope: envelope,
		Backend:          string(backend),
		RequestID:        RequestID(c),
	}
	if failure != nil {
		response.Code = string(failure.Code)
	}
	c.JSON(statusFor(failure), response)
}

// reject answers before the pipeline ran, still in envelope form.
func (s *AnswerService) reject(c *gin.Context, stdErr *apperrors.StandardError) {
	msg := stdErr.Human()
	c.JSON(statusFor(stdErr), AnswerResponse{
		ResponseEnvelope: models.ResponseEnvelope{
			GeneratedQueries: []string{},
			RawResults:       []string{},
			Error:            &msg,
		},
		Code:      string(stdErr.Code),
		RequestID: RequestID(c),
	})
}

func (s *AnswerService) describe(c *gin.Context) {
	raw := c.Param("backend")
	if result := validation.ValidateDescribeRequest(map[string]interface{}{"backend": raw}); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Error(), "code": apperrors.ErrCodeInvalidInput})
		return
	}
	backend, err := models.ParseBackend(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.ErrCodeInvalidInput})
		return
	}

	snapshot, err := s.pipeline.Describe(c.Request.Context(), backend)
	if err != nil {
		stdErr := apperrors.Normalize(err)
		status := statusFor(stdErr)
		if stdErr.Code == apperrors.ErrCodeBackendNotConfigured {
			status = http.StatusNotFound
		}
		s.logger.Warn("describe failed", map[string]interface{}{
			"backend": string(backend),
			"error":   stdErr.Human(),
		})
		c.JSON(status, gin.H{"error": stdErr.Human(), "code": stdErr.Code})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *AnswerService) backends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backends": s.pipeline.Backends(),
		"default":  s.defaultBackend,
	})
}

// statusFor maps a failure onto an HTTP status. Query-level failures still
// produced a complete envelope, so they are reported with 200.
func statusFor(stdErr *apperrors.StandardError) int {
	if stdErr == nil {
		return http.StatusOK
	}
	switch stdErr.Code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeBackendNotConfigured:
		return http.StatusBadRequest
	case apperrors.ErrCodeExtractionFailed, apperrors.ErrCodeExecutionFailed:
		return http.StatusOK
	case apperrors.ErrCodeInternal:
		return http.StatusInternalServerError
	}
	if errors.Is(stdErr, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if stdErr.Retryable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
