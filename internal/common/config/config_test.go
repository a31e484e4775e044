package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  relational:
    driver: sqlite
    dsn: "file:demo.db"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nlquery-agent", cfg.App.Name)
	assert.Equal(t, "ollama", cfg.GenAI.Provider)
	assert.Equal(t, "llama3", cfg.GenAI.Model)
	assert.Equal(t, "http://localhost:11434", cfg.GenAI.BaseURL)
	assert.Equal(t, 0.0, cfg.GenAI.Temperature)
	assert.Equal(t, "relational", cfg.Pipeline.DefaultBackend)
	assert.True(t, cfg.Pipeline.IsReadOnly())
	assert.Equal(t, "", cfg.Database.Relational.Schema)
	assert.Equal(t, 5*time.Second, GetDuration(cfg.Sandbox.Timeout))
	assert.Equal(t, 256, cfg.Sandbox.MaxMemoryMB)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadFromFileEnvOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB_NAME", "llm_agent_db")
	t.Setenv("GENAI_API_KEY", "sk-test")
	t.Setenv("NLQ_TEST_MODEL", "llama3.1")

	path := writeConfig(t, `
genai:
  model: "${NLQ_TEST_MODEL}"
pipeline:
  read_only: false
  answer_language: Spanish
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.Document.URI)
	assert.Equal(t, "llm_agent_db", cfg.Database.Document.Database)
	assert.Equal(t, "sk-test", cfg.GenAI.APIKey)
	assert.Equal(t, "llama3.1", cfg.GenAI.Model)
	assert.False(t, cfg.Pipeline.IsReadOnly())
	assert.Equal(t, "Spanish", cfg.Pipeline.AnswerLanguage)
	assert.True(t, cfg.Database.Document.Enabled())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "no backend",
			body:    "app:\n  name: x\n",
			wantErr: "at least one of database.relational or database.document",
		},
		{
			name: "bad provider",
			body: `
genai:
  provider: bard
database:
  document:
    driver: memory
`,
			wantErr: "genai.provider",
		},
		{
			name: "cache without redis",
			body: `
schema_cache:
  enabled: true
database:
  document:
    driver: memory
`,
			wantErr: "database.redis.address",
		},
		{
			name: "camunda without broker",
			body: `
camunda:
  enabled: true
database:
  document:
    driver: memory
`,
			wantErr: "camunda.broker_address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDSN(t *testing.T) {
	pq := RelationalConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", pq.GetDSN())

	pgx := pq
	pgx.Driver = "pgx"
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", pgx.GetDSN())

	explicit := RelationalConfig{DSN: "postgres://x"}
	assert.Equal(t, "postgres://x", explicit.GetDSN())
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"answer-question": {Enabled: false, Timeout: 1000}}}
	assert.False(t, IsWorkerEnabled(cfg, "answer-question"))
	assert.Equal(t, 1000, GetWorkerConfig(cfg, "answer-question").Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "other"))
	assert.Equal(t, 180000, GetWorkerConfig(cfg, "other").Timeout)
}
