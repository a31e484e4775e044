package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/evaluation"
	"nlquery-agent/internal/models"
)

func init() {
	pterm.DisableColor()
}

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError) {
	args := m.Called(ctx, question, backend)
	failure, _ := args.Get(1).(*apperrors.StandardError)
	return args.Get(0).(models.ResponseEnvelope), failure
}

func (m *MockPipeline) Describe(ctx context.Context, backend models.Backend) (models.SchemaSnapshot, error) {
	args := m.Called(ctx, backend)
	return args.Get(0).(models.SchemaSnapshot), args.Error(1)
}

func (m *MockPipeline) Supports(backend models.Backend) bool {
	return m.Called(backend).Bool(0)
}

func strPtr(s string) *string { return &s }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		kind    commandKind
		backend models.Backend
		wantErr bool
	}{
		{"", cmdNone, "", false},
		{"   ", cmdNone, "", false},
		{"exit", cmdExit, "", false},
		{"QUIT", cmdExit, "", false},
		{"salir\n", cmdExit, "", false},
		{"help", cmdHelp, "", false},
		{"schema", cmdSchema, "", false},
		{"switch mongo", cmdSwitch, models.BackendDocument, false},
		{"use postgres", cmdSwitch, models.BackendRelational, false},
		{"Use SQL", cmdSwitch, models.BackendRelational, false},
		{"switch oracle", cmdSwitch, "", true},
		{"How many users are there?", cmdAsk, "", false},
		{"use the orders table to count", cmdAsk, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd := parseCommand(tt.line)
			assert.Equal(t, tt.kind, cmd.kind)
			assert.Equal(t, tt.backend, cmd.backend)
			assert.Equal(t, tt.wantErr, cmd.err != nil)
		})
	}

	assert.Equal(t, "How many users?", parseCommand("  How many users?\n").question)
}

func newShell(p asker, input string) (*shell, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &shell{
		pipeline: p,
		backend:  models.BackendRelational,
		in:       bufio.NewReader(strings.NewReader(input)),
		out:      out,
	}, out
}

func TestShellAsksAndSwitches(t *testing.T) {
	p := new(MockPipeline)
	p.On("Supports", models.BackendDocument).Return(true)
	p.On("Run", mock.Anything, "How many users?", models.BackendRelational).Return(models.ResponseEnvelope{
		Answer:           strPtr("There are 10 users."),
		GeneratedQueries: []string{"SELECT COUNT(*) FROM users;"},
		RawResults:       []string{"10"},
	}, nil)
	p.On("Run", mock.Anything, "How many orders?", models.BackendDocument).Return(models.ResponseEnvelope{
		Answer:           strPtr("There are 15 orders."),
		GeneratedQueries: []string{"result = count('orders', {})"},
		RawResults:       []string{"15"},
	}, nil)

	s, out := newShell(p, "How many users?\nswitch mongo\nHow many orders?\nexit\nnever read\n")
	require.NoError(t, s.loop(context.Background()))

	text := out.String()
	assert.Contains(t, text, "SELECT COUNT(*) FROM users;")
	assert.Contains(t, text, "There are 10 users.")
	assert.Contains(t, text, "now querying the document backend")
	assert.Contains(t, text, "There are 15 orders.")
	assert.Contains(t, text, "Generated Lua")
	assert.Contains(t, text, "Bye.")
	assert.Equal(t, models.BackendDocument, s.backend)
	p.AssertExpectations(t)
}

func TestShellRefusesUnconfiguredBackend(t *testing.T) {
	p := new(MockPipeline)
	p.On("Supports", models.BackendDocument).Return(false)

	s, out := newShell(p, "use mongo\nswitch oracle\n")
	require.NoError(t, s.loop(context.Background()))

	assert.Contains(t, out.String(), "backend document is not configured")
	assert.Contains(t, out.String(), `unknown backend "oracle"`)
	assert.Equal(t, models.BackendRelational, s.backend)
	p.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestShellEndsOnEOF(t *testing.T) {
	p := new(MockPipeline)
	p.On("Run", mock.Anything, "last question", models.BackendRelational).Return(models.ResponseEnvelope{
		Answer: strPtr("done"),
	}, nil)

	s, out := newShell(p, "last question")
	require.NoError(t, s.loop(context.Background()))
	assert.Contains(t, out.String(), "done")
	p.AssertExpectations(t)
}

func TestShellSchema(t *testing.T) {
	p := new(MockPipeline)
	p.On("Describe", mock.Anything, models.BackendRelational).Return(models.SchemaSnapshot{
		Backend:  models.BackendRelational,
		Entities: []models.Entity{{Name: "users", Shape: "CREATE TABLE users (id INTEGER)"}},
	}, nil).Once()
	p.On("Describe", mock.Anything, models.BackendRelational).
		Return(models.SchemaSnapshot{}, apperrors.NewSchemaUnavailableError(errors.New("connection refused"))).Once()

	s, out := newShell(p, "schema\nschema\nhelp\n")
	require.NoError(t, s.loop(context.Background()))

	text := out.String()
	assert.Contains(t, text, "CREATE TABLE users (id INTEGER)")
	assert.Contains(t, text, "connection refused")
	assert.Contains(t, text, "switch <backend>")
}

func TestRenderEnvelopeFailure(t *testing.T) {
	var out bytes.Buffer
	renderEnvelope(&out, models.BackendRelational, models.ResponseEnvelope{
		GeneratedQueries: []string{"SELECT * FROM customers;"},
		RawResults:       []string{"Error: no such table: customers"},
		Error:            strPtr("Query execution failed: no such table: customers"),
	})

	text := out.String()
	assert.Contains(t, text, "Generated SQL")
	assert.Contains(t, text, "SELECT * FROM customers;")
	assert.Contains(t, text, "Query execution failed")
	assert.NotContains(t, text, "Answer")
}

func TestRenderEnvelopeClipsLongResults(t *testing.T) {
	var out bytes.Buffer
	renderEnvelope(&out, models.BackendDocument, models.ResponseEnvelope{
		RawResults: []string{strings.Repeat("x", maxRawChars+10)},
		Answer:     strPtr("ok"),
	})
	assert.Contains(t, out.String(), "(10 more characters)")
}

func TestRenderSchemaEmpty(t *testing.T) {
	var out bytes.Buffer
	renderSchema(&out, models.SchemaSnapshot{})
	assert.Contains(t, out.String(), "No tables or collections found")
}

func TestRenderReport(t *testing.T) {
	results := []evaluation.Result{
		{
			Case:     evaluation.Case{Backend: models.BackendRelational, Category: evaluation.CategorySimple, Question: "How many users are there in total?"},
			Status:   evaluation.StatusSuccess,
			Summary:  "There are 10 users.",
			Duration: 1500 * time.Millisecond,
		},
		{
			Case:     evaluation.Case{Backend: models.BackendDocument, Category: evaluation.CategoryAggregation, Question: "What is the average order amount?"},
			Status:   evaluation.StatusFailed,
			Summary:  "Query execution failed",
			Duration: 500 * time.Millisecond,
		},
	}

	var out bytes.Buffer
	require.NoError(t, renderReport(&out, results))

	text := out.String()
	assert.Contains(t, text, "There are 10 users.")
	assert.Contains(t, text, "FAILED")
	assert.Contains(t, text, "Success rate: 50.0%")
	assert.Contains(t, text, "Average time: 1.00s")
	assert.Contains(t, text, "relational: 1.50s over 1 questions")
	assert.Contains(t, text, "Aggregation: 0.50s")
}

func TestRunChecks(t *testing.T) {
	var out bytes.Buffer
	failed := runChecks(context.Background(), &out, map[string]func(context.Context) error{
		"relational": func(context.Context) error { return nil },
		"document":   func(context.Context) error { return errors.New("server selection timeout") },
	})

	assert.Equal(t, 1, failed)
	text := out.String()
	assert.Contains(t, text, "server selection timeout")
	assert.Contains(t, text, "ok (")
	assert.Less(t, strings.Index(text, "document"), strings.Index(text, "relational"))
}

func TestResolveBackend(t *testing.T) {
	b, err := resolveBackend("", "relational")
	require.NoError(t, err)
	assert.Equal(t, models.BackendRelational, b)

	b, err = resolveBackend("mongo", "relational")
	require.NoError(t, err)
	assert.Equal(t, models.BackendDocument, b)

	_, err = resolveBackend("oracle", "relational")
	assert.Error(t, err)
}
