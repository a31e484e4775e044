package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-agent/internal/common/config"
	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/models"
)

type fakePipeline struct {
	envelope models.ResponseEnvelope
	failure  *apperrors.StandardError
	snapshot models.SchemaSnapshot
	err      error

	gotQuestion string
	gotBackend  models.Backend
}

func (f *fakePipeline) Run(_ context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError) {
	f.gotQuestion, f.gotBackend = question, backend
	return f.envelope, f.failure
}

func (f *fakePipeline) Describe(_ context.Context, backend models.Backend) (models.SchemaSnapshot, error) {
	f.gotBackend = backend
	return f.snapshot, f.err
}

func makeCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var arguments interface{}
	if args != nil {
		arguments = map[string]any(args)
	}
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: arguments,
		},
	}
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func newDeps(t *testing.T, p Pipeline) *ToolDeps {
	return &ToolDeps{Pipeline: p, DefaultBackend: models.BackendRelational, Logger: logger.NewTestLogger(t)}
}

func TestHandleAnswerQuestion(t *testing.T) {
	answer := "There are 10 users."
	p := &fakePipeline{envelope: models.ResponseEnvelope{
		Answer:           &answer,
		GeneratedQueries: []string{"SELECT COUNT(*) FROM users;"},
		RawResults:       []string{"10"},
	}}

	result, err := newDeps(t, p).HandleAnswerQuestion(context.Background(), makeCallToolRequest(map[string]interface{}{
		"question": "How many users are there?",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, models.BackendRelational, p.gotBackend)

	var envelope models.ResponseEnvelope
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &envelope))
	assert.Equal(t, answer, envelope.AnswerText())
	assert.Equal(t, []string{"10"}, envelope.RawResults)
}

func TestHandleAnswerQuestionFailure(t *testing.T) {
	failure := apperrors.NewExecutionFailedError("no such table: customers")
	msg := failure.Human()
	p := &fakePipeline{
		envelope: models.ResponseEnvelope{
			GeneratedQueries: []string{"SELECT * FROM customers;"},
			RawResults:       []string{"Error: no such table: customers"},
			Error:            &msg,
		},
		failure: failure,
	}

	result, err := newDeps(t, p).HandleAnswerQuestion(context.Background(), makeCallToolRequest(map[string]interface{}{
		"question": "List customers",
		"backend":  "mongo",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, models.BackendDocument, p.gotBackend)
	assert.Contains(t, text(t, result), "SELECT * FROM customers;")
}

func TestHandleAnswerQuestionBadArguments(t *testing.T) {
	deps := newDeps(t, &fakePipeline{})

	result, err := deps.HandleAnswerQuestion(context.Background(), makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "question parameter is required")

	result, err = deps.HandleAnswerQuestion(context.Background(), makeCallToolRequest(map[string]interface{}{
		"question": "q",
		"backend":  "oracle",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "unknown backend")
}

func TestHandleDescribeSchema(t *testing.T) {
	p := &fakePipeline{snapshot: models.SchemaSnapshot{
		Backend: models.BackendDocument,
		Entities: []models.Entity{
			{Name: "users", Shape: `{"name": "string"}`},
			{Name: "orders", Shape: models.EmptyCollectionMarker, Empty: true},
		},
	}}

	result, err := newDeps(t, p).HandleDescribeSchema(context.Background(), makeCallToolRequest(map[string]interface{}{
		"backend": "document",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	out := text(t, result)
	assert.Contains(t, out, "users:")
	assert.Contains(t, out, "orders:\n"+models.EmptyCollectionMarker)
}

func TestHandleDescribeSchemaErrors(t *testing.T) {
	p := &fakePipeline{err: apperrors.NewSchemaUnavailableError(errors.New("connection refused"))}
	deps := newDeps(t, p)

	result, err := deps.HandleDescribeSchema(context.Background(), makeCallToolRequest(map[string]interface{}{
		"backend": "sql",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "connection refused")

	result, err = deps.HandleDescribeSchema(context.Background(), makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNewServer(t *testing.T) {
	s := NewServer(config.MCPConfig{Address: ":0"}, "test", newDeps(t, &fakePipeline{}))
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.http)
	assert.Equal(t, ":0", s.cfg.Address)
}
