package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"nlquery-agent/internal/common/database"
	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/genai"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/pipeline/execute"
	"nlquery-agent/internal/pipeline/prompt"
	"nlquery-agent/internal/pipeline/schema"
	"nlquery-agent/internal/sandbox"
)

// scripted replays completions in order and records the prompts it was given.
type scripted struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scripted) Complete(_ context.Context, p string, _ genai.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, p)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("unexpected completion call")
}

func seededRelational(t *testing.T) *database.RelationalClient {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT NOT NULL);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id), total_amount REAL);`)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, err = db.Exec(`INSERT INTO users (id, username) VALUES (?, ?)`, i, fmt.Sprintf("user%02d", i))
		require.NoError(t, err)
	}
	return database.NewRelationalFromDB(db, database.DialectSQLite, "")
}

func relationalStrategy(t *testing.T) Strategy {
	client := seededRelational(t)
	return Strategy{
		Schema:   schema.NewRelationalBuilder(client),
		Executor: execute.NewRelationalExecutor(client, true),
	}
}

func documentStrategy(store docstore.Store) Strategy {
	return Strategy{
		Schema:   schema.NewDocumentBuilder(store),
		Executor: execute.NewDocumentExecutor(sandbox.New(store, sandbox.Config{Timeout: time.Second})),
	}
}

func newPipeline(t *testing.T, completion genai.Client, strategies map[models.Backend]Strategy) *Pipeline {
	return New(Config{
		Strategies: strategies,
		Composer:   prompt.NewComposer("English", 0, "SQLite"),
		Completion: completion,
	}, logger.NewTestLogger(t))
}

func assertExclusive(t *testing.T, env models.ResponseEnvelope) {
	t.Helper()
	if env.Error == nil {
		assert.NotNil(t, env.Answer, "a run without error must carry an answer")
	}
	assert.NotNil(t, env.GeneratedQueries)
	assert.NotNil(t, env.RawResults)
}

func TestAnswerRelationalCount(t *testing.T) {
	completion := &scripted{responses: []string{
		"Here is the query:\n```sql\nSELECT COUNT(*) FROM users;\n```\nIt counts users.",
		"There are 10 users.",
	}}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendRelational: relationalStrategy(t)})

	env, failure := p.Run(context.Background(), "How many users are there?", models.BackendRelational)

	require.Nil(t, failure)
	assertExclusive(t, env)
	assert.Nil(t, env.Error)
	assert.Equal(t, "There are 10 users.", env.AnswerText())
	assert.Equal(t, []string{"SELECT COUNT(*) FROM users;"}, env.GeneratedQueries)
	assert.Equal(t, []string{"10"}, env.RawResults)

	require.Len(t, completion.prompts, 2)
	assert.Contains(t, completion.prompts[0], "CREATE TABLE users")
	assert.Contains(t, completion.prompts[0], "How many users are there?")
	assert.Contains(t, completion.prompts[1], "SELECT COUNT(*) FROM users;")
	assert.Contains(t, completion.prompts[1], "10")
}

func TestAnswerDocumentEmptyCollection(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("users", docstore.Document{"name": "Alice"})
	store.CreateCollection("orders")

	completion := &scripted{responses: []string{
		"```lua\nresult = db.orders:find({}):to_list()\n```",
		"There are no orders.",
	}}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendDocument: documentStrategy(store)})

	snapshot, err := p.Describe(context.Background(), models.BackendDocument)
	require.NoError(t, err)
	orders, ok := snapshot.Entity("orders")
	require.True(t, ok, "empty collections stay in the snapshot")
	assert.True(t, orders.Empty)
	assert.Equal(t, models.EmptyCollectionMarker, orders.Shape)

	env := p.Answer(context.Background(), "List all orders", models.BackendDocument)

	assertExclusive(t, env)
	assert.Nil(t, env.Error)
	assert.Equal(t, []string{"result = db.orders:find({}):to_list()"}, env.GeneratedQueries)
	assert.Equal(t, []string{"[]"}, env.RawResults)
	assert.Contains(t, completion.prompts[0], models.EmptyCollectionMarker)
}

func TestAnswerFailures(t *testing.T) {
	tests := []struct {
		name        string
		question    string
		backend     models.Backend
		completion  *scripted
		code        apperrors.ErrorCode
		answer      string
		queries     []string
		rawResults  []string
		rawPrefix   string
		errContains string
	}{
		{
			name:       "empty question",
			question:   "   ",
			backend:    models.BackendRelational,
			completion: &scripted{},
			code:       apperrors.ErrCodeInvalidInput,
			queries:    []string{},
			rawResults: []string{},
		},
		{
			name:       "backend not configured",
			question:   "How many orders?",
			backend:    models.BackendDocument,
			completion: &scripted{},
			code:       apperrors.ErrCodeBackendNotConfigured,
			queries:    []string{},
			rawResults: []string{},
		},
		{
			name:        "completion unavailable",
			question:    "How many users?",
			backend:     models.BackendRelational,
			completion:  &scripted{errs: []error{genai.ErrCompletionUnavailable}},
			code:        apperrors.ErrCodeCompletionUnavailable,
			queries:     []string{},
			rawResults:  []string{},
			errContains: "Completion service unavailable",
		},
		{
			name:       "no query in completion",
			question:   "How many users?",
			backend:    models.BackendRelational,
			completion: &scripted{responses: []string{"I am not sure what you mean."}},
			code:       apperrors.ErrCodeExtractionFailed,
			answer:     AnswerExtractionFailed,
			queries:    []string{},
			rawResults: []string{},
		},
		{
			name:       "unterminated fence",
			question:   "How many users?",
			backend:    models.BackendRelational,
			completion: &scripted{responses: []string{"```sql\nSELECT COUNT(*) FROM users"}},
			code:       apperrors.ErrCodeExtractionFailed,
			answer:     AnswerExtractionFailed,
			queries:    []string{},
			rawResults: []string{},
		},
		{
			name:        "driver error keeps partial artifacts",
			question:    "How many customers?",
			backend:     models.BackendRelational,
			completion:  &scripted{responses: []string{"```sql\nSELECT COUNT(*) FROM customers;\n```"}},
			code:        apperrors.ErrCodeExecutionFailed,
			queries:     []string{"SELECT COUNT(*) FROM customers;"},
			rawPrefix:   "Error: ",
			errContains: "no such table: customers",
		},
		{
			name:        "write statement rejected",
			question:    "Remove every user",
			backend:     models.BackendRelational,
			completion:  &scripted{responses: []string{"```sql\nDELETE FROM users;\n```"}},
			code:        apperrors.ErrCodeExecutionFailed,
			queries:     []string{"DELETE FROM users;"},
			errContains: "statement rejected",
		},
		{
			name:     "blank interpretation",
			question: "How many users?",
			backend:  models.BackendRelational,
			completion: &scripted{responses: []string{
				"```sql\nSELECT COUNT(*) FROM users;\n```",
				"   ",
			}},
			code:       apperrors.ErrCodeInterpretationFailed,
			queries:    []string{"SELECT COUNT(*) FROM users;"},
			rawResults: []string{"10"},
		},
		{
			name:     "interpretation service down",
			question: "How many users?",
			backend:  models.BackendRelational,
			completion: &scripted{
				responses: []string{"```sql\nSELECT COUNT(*) FROM users;\n```"},
				errs:      []error{nil, genai.ErrCompletionUnavailable},
			},
			code:       apperrors.ErrCodeInterpretationFailed,
			queries:    []string{"SELECT COUNT(*) FROM users;"},
			rawResults: []string{"10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.completion, map[models.Backend]Strategy{models.BackendRelational: relationalStrategy(t)})

			env, failure := p.Run(context.Background(), tt.question, tt.backend)

			require.NotNil(t, failure)
			assert.Equal(t, tt.code, failure.Code)
			require.NotNil(t, env.Error)
			assertExclusive(t, env)

			if tt.answer != "" {
				assert.Equal(t, tt.answer, env.AnswerText())
			}
			if tt.queries != nil {
				assert.Equal(t, tt.queries, env.GeneratedQueries)
			}
			if tt.rawResults != nil {
				assert.Equal(t, tt.rawResults, env.RawResults)
			}
			if tt.rawPrefix != "" {
				require.Len(t, env.RawResults, 1)
				assert.True(t, strings.HasPrefix(env.RawResults[0], tt.rawPrefix))
				assert.True(t, strings.HasPrefix(env.AnswerText(), "Error executing the query: "))
			}
			if tt.errContains != "" {
				assert.Contains(t, env.ErrorText(), tt.errContains)
			}
		})
	}
}

func TestAnswerDocumentContainment(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("users", docstore.Document{"name": "Alice"})

	completion := &scripted{responses: []string{"```lua\nlocal f = io.open('/etc/passwd')\nresult = f:read('*a')\n```"}}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendDocument: documentStrategy(store)})

	env, failure := p.Run(context.Background(), "Read the password file", models.BackendDocument)

	require.NotNil(t, failure)
	assert.Equal(t, apperrors.ErrCodeExecutionFailed, failure.Code)
	require.Len(t, env.RawResults, 1)
	assert.True(t, strings.HasPrefix(env.RawResults[0], "Error: "))
	assert.NotContains(t, env.RawResults[0], "root:")
}

func TestAnswerDocumentNoResult(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("users", docstore.Document{"name": "Alice"})

	completion := &scripted{responses: []string{"```lua\nlocal n = db.users:count_documents({})\nresult = n\n```", "One user."}}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendDocument: documentStrategy(store)})
	env := p.Answer(context.Background(), "How many users?", models.BackendDocument)
	assert.Nil(t, env.Error)
	assert.Equal(t, []string{"1"}, env.RawResults)

	completion = &scripted{responses: []string{"```lua\nlocal n = db.users:count_documents({})\n```"}}
	p = newPipeline(t, completion, map[models.Backend]Strategy{models.BackendDocument: documentStrategy(store)})
	env = p.Answer(context.Background(), "How many users?", models.BackendDocument)
	require.NotNil(t, env.Error)
	assert.Equal(t, []string{"Error: no result produced"}, env.RawResults)
}

func TestAnswerSchemaUnavailable(t *testing.T) {
	failing := Strategy{
		Schema: schema.BuilderFunc(func(context.Context) (models.SchemaSnapshot, error) {
			return models.SchemaSnapshot{}, fmt.Errorf("%w: connection refused", schema.ErrSchemaUnavailable)
		}),
		Executor: execute.NewRelationalExecutor(seededRelational(t), true),
	}
	completion := &scripted{}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendRelational: failing})

	env, failure := p.Run(context.Background(), "How many users?", models.BackendRelational)

	require.NotNil(t, failure)
	assert.Equal(t, apperrors.ErrCodeSchemaUnavailable, failure.Code)
	assert.Equal(t, "SCHEMA", failure.Metadata["stage"])
	assert.Nil(t, env.Answer)
	assert.Empty(t, completion.prompts)
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, models.GeneratedArtifact) models.ExecutionOutcome {
	panic("driver exploded")
}

func TestAnswerRecoversPanics(t *testing.T) {
	client := seededRelational(t)
	completion := &scripted{responses: []string{"```sql\nSELECT 1;\n```"}}
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendRelational: {
		Schema:   schema.NewRelationalBuilder(client),
		Executor: panickingExecutor{},
	}})

	env, failure := p.Run(context.Background(), "Anything?", models.BackendRelational)

	require.NotNil(t, failure)
	assert.Equal(t, apperrors.ErrCodeInternal, failure.Code)
	assert.Equal(t, AnswerUnexpected, env.AnswerText())
	assert.Equal(t, []string{"SELECT 1;"}, env.GeneratedQueries)
	assert.Contains(t, env.ErrorText(), "driver exploded")
}

func TestAnswerConcurrentRuns(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("users", docstore.Document{"name": "Alice"}, docstore.Document{"name": "Bob"})

	completion := genai.ClientFunc(func(_ context.Context, p string, _ genai.Options) (string, error) {
		if strings.Contains(p, "Database result:") {
			return "Two users.", nil
		}
		return "```lua\nresult = db.users:count_documents({})\n```", nil
	})
	p := newPipeline(t, completion, map[models.Backend]Strategy{models.BackendDocument: documentStrategy(store)})

	var wg sync.WaitGroup
	envelopes := make([]models.ResponseEnvelope, 8)
	for i := range envelopes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envelopes[i] = p.Answer(context.Background(), "How many users?", models.BackendDocument)
		}(i)
	}
	wg.Wait()

	for _, env := range envelopes {
		assert.Nil(t, env.Error)
		assert.Equal(t, []string{"2"}, env.RawResults)
	}
}

func TestBackends(t *testing.T) {
	p := newPipeline(t, &scripted{}, map[models.Backend]Strategy{
		models.BackendRelational: relationalStrategy(t),
		models.BackendDocument:   documentStrategy(docstore.NewMemoryStore()),
	})
	assert.Equal(t, []models.Backend{models.BackendDocument, models.BackendRelational}, p.Backends())
	assert.True(t, p.Supports(models.BackendDocument))

	_, err := p.Describe(context.Background(), models.Backend("graph"))
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeBackendNotConfigured, stdErr.Code)
}
