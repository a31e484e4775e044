// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-agent/internal/app"
	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/genai"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/evaluation"
	"nlquery-agent/internal/fixtures"
	nlmcp "nlquery-agent/internal/mcp"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/server"
)

// completionScript answers generation prompts from queries, keyed by a
// substring of the question, and interpretation prompts with a fixed sentence.
type completionScript struct {
	queries map[string]string
	answer  string
}

func (s completionScript) client() genai.Client {
	return genai.ClientFunc(func(ctx context.Context, prompt string, opts genai.Options) (string, error) {
		if strings.Contains(prompt, "Database result:") {
			return s.answer, nil
		}
		for needle, query := range s.queries {
			if strings.Contains(prompt, needle) {
				return query, nil
			}
		}
		return "I cannot answer that.", nil
	})
}

func inProcessConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "nlquery-agent", Version: "test"},
		Pipeline: config.PipelineConfig{DefaultBackend: "relational", AnswerLanguage: "English", MaxResultChars: 4000},
		GenAI:    config.GenAIConfig{Provider: "ollama", Model: "llama3"},
		Database: config.DatabaseConfig{
			Relational: config.RelationalConfig{Driver: "sqlite", DSN: ":memory:", MaxConnections: 1, MaxIdle: 1},
			Document:   config.DocumentConfig{Driver: "memory"},
		},
		Server: config.ServerConfig{Address: ":0", RequestTimeout: 10000},
	}
}

type testEnv struct {
	app     *app.App
	handler http.Handler
	deps    *nlmcp.ToolDeps
}

func newTestEnv(t *testing.T, script completionScript) *testEnv {
	t.Helper()
	ctx := context.Background()
	cfg := inProcessConfig()
	log := logger.NewTestLogger(t)

	a, err := app.New(ctx, cfg, log, app.Options{Completion: script.client()})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	checks := make(map[string]server.Check)
	for name, check := range a.Checks() {
		checks[name] = check
	}
	srv := server.New(cfg.Server, checks, log,
		server.NewAnswerService(a.Pipeline, models.BackendRelational, 10*time.Second, log),
	)

	return &testEnv{
		app:     a,
		handler: srv.Handler(),
		deps:    &nlmcp.ToolDeps{Pipeline: a.Pipeline, DefaultBackend: models.BackendRelational, Logger: log},
	}
}

func (e *testEnv) ask(t *testing.T, body map[string]interface{}) (int, server.AnswerResponse) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/answer", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var resp server.AnswerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func assertExclusive(t *testing.T, env models.ResponseEnvelope) {
	t.Helper()
	if env.Error == nil {
		assert.NotNil(t, env.Answer, "a successful run carries an answer")
	}
	assert.NotNil(t, env.GeneratedQueries)
	assert.NotNil(t, env.RawResults)
}

// Relational count over the seeded demo data, asked through the HTTP API.
func TestRelationalCountOverHTTP(t *testing.T) {
	env := newTestEnv(t, completionScript{
		queries: map[string]string{"How many users": "```sql\nSELECT COUNT(*) FROM users;\n```"},
		answer:  "There are 10 users.",
	})
	_, err := fixtures.SeedRelational(context.Background(), env.app.Relational, 7, time.Now())
	require.NoError(t, err)

	code, resp := env.ask(t, map[string]interface{}{"question": "How many users are there?", "backend": "postgres"})

	assert.Equal(t, http.StatusOK, code)
	assertExclusive(t, resp.ResponseEnvelope)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"SELECT COUNT(*) FROM users;"}, resp.GeneratedQueries)
	assert.Equal(t, []string{"10"}, resp.RawResults)
	assert.Equal(t, "There are 10 users.", resp.AnswerText())
	assert.Equal(t, "relational", resp.Backend)
	assert.NotEmpty(t, resp.RequestID)
}

// An empty collection stays visible in the schema and a full scan of it is
// an empty result, not an error.
func TestDocumentEmptyCollection(t *testing.T) {
	env := newTestEnv(t, completionScript{
		queries: map[string]string{"List all orders": "```lua\nresult = db.orders:find({}):to_list()\n```"},
		answer:  "There are no orders.",
	})
	env.app.Memory.Insert("users", map[string]interface{}{"name": "Alice Smith", "email": "alice@example.com"})
	env.app.Memory.CreateCollection("orders")

	req := httptest.NewRequest(http.MethodGet, "/api/schema/mongo", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.SchemaSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	orders, ok := snapshot.Entity("orders")
	require.True(t, ok)
	assert.True(t, orders.Empty)
	assert.Equal(t, models.EmptyCollectionMarker, orders.Shape)

	code, resp := env.ask(t, map[string]interface{}{"question": "List all orders", "backend": "mongo"})
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"[]"}, resp.RawResults)
	assert.Equal(t, "There are no orders.", resp.AnswerText())
}

func TestExecutionFailureKeepsArtifacts(t *testing.T) {
	env := newTestEnv(t, completionScript{
		queries: map[string]string{"customers": "```sql\nSELECT * FROM customers;\n```"},
		answer:  "unused",
	})

	code, resp := env.ask(t, map[string]interface{}{"question": "List all customers"})

	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "EXECUTION_FAILED", resp.Code)
	assert.Equal(t, []string{"SELECT * FROM customers;"}, resp.GeneratedQueries)
	require.Len(t, resp.RawResults, 1)
	assert.True(t, strings.HasPrefix(resp.RawResults[0], "Error:"))
}

func TestWriteStatementRefused(t *testing.T) {
	env := newTestEnv(t, completionScript{
		queries: map[string]string{"Delete": "```sql\nDELETE FROM users;\n```"},
		answer:  "unused",
	})
	_, err := fixtures.SeedRelational(context.Background(), env.app.Relational, 7, time.Now())
	require.NoError(t, err)

	_, resp := env.ask(t, map[string]interface{}{"question": "Delete every user"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, []string{"DELETE FROM users;"}, resp.GeneratedQueries)

	var n int
	require.NoError(t, env.app.Relational.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM users").Scan(&n))
	assert.Equal(t, len(fixtures.Users), n)
}

func TestSeededDocumentsThroughMCP(t *testing.T) {
	env := newTestEnv(t, completionScript{
		queries: map[string]string{"How many users": "```lua\nresult = db.users:count_documents({})\n```"},
		answer:  "There are 5 users.",
	})
	_, err := fixtures.SeedDocuments(context.Background(), fixtures.MemoryWriter(env.app.Memory), 7, time.Now())
	require.NoError(t, err)

	result, err := env.deps.HandleAnswerQuestion(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: map[string]any{
			"question": "How many users are there?",
			"backend":  "mongo",
		}},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var envelope models.ResponseEnvelope
	require.NoError(t, json.Unmarshal([]byte(content.Text), &envelope))
	assert.Equal(t, []string{"5"}, envelope.RawResults)
	assert.Equal(t, "There are 5 users.", envelope.AnswerText())
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t, completionScript{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relational")
	assert.Contains(t, w.Body.String(), "document")
}

// TestLiveEvaluation runs the built-in question set against the stores and
// completion service named in configs/config.yaml. It reseeds both stores.
func TestLiveEvaluation(t *testing.T) {
	if testing.Short() || os.Getenv("NLQUERY_E2E_LIVE") == "" {
		t.Skip("set NLQUERY_E2E_LIVE=1 to run against real services")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)

	t.Log("🚀 Starting live evaluation...")
	a, err := app.New(ctx, cfg, logger.NewTestLogger(t), app.Options{ConnectAttempts: 3, RetryDelay: time.Second})
	require.NoError(t, err, "❌ stores or completion service unreachable")
	defer a.Close(context.Background())

	for name, check := range a.Checks() {
		require.NoError(t, check(ctx), "❌ %s ping failed", name)
		t.Logf("✅ %s connected", name)
	}

	if a.Relational != nil {
		_, err := fixtures.SeedRelational(ctx, a.Relational, 42, time.Now())
		require.NoError(t, err)
	}
	if a.Mongo != nil {
		_, err := fixtures.SeedDocuments(ctx, fixtures.MongoWriter(a.Mongo.Database), 42, time.Now())
		require.NoError(t, err)
	}

	cases := evaluation.CasesFor(evaluation.DefaultCases, a.Pipeline.Backends()...)
	results := evaluation.Run(ctx, a.Pipeline, cases, func(r evaluation.Result) {
		assertExclusive(t, r.Envelope)
		t.Logf("%s [%s] %s: %s", r.Status, r.Backend, r.Question, r.Summary)
	})

	stats := evaluation.Aggregate(results)
	t.Logf("✅ %d/%d succeeded (%.1f%%), average %s", stats.Succeeded, stats.Total, stats.SuccessRate(), stats.AverageOverall)
	assert.Equal(t, len(cases), stats.Total)
}
