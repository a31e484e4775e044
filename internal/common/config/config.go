// internal/common/config/config.go
package config

import (
	"fmt"
	"net/url"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Server        ServerConfig            `mapstructure:"server"`
	Pipeline      PipelineConfig          `mapstructure:"pipeline"`
	GenAI         GenAIConfig             `mapstructure:"genai"`
	Database      DatabaseConfig          `mapstructure:"database"`
	SchemaCache   SchemaCacheConfig       `mapstructure:"schema_cache"`
	Sandbox       SandboxConfig           `mapstructure:"sandbox"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	MCP           MCPConfig               `mapstructure:"mcp"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	RequestTimeout int      `mapstructure:"request_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PipelineConfig tunes the question-answering pipeline itself.
type PipelineConfig struct {
	DefaultBackend string `mapstructure:"default_backend"`
	AnswerLanguage string `mapstructure:"answer_language"`
	MaxResultChars int    `mapstructure:"max_result_chars"`
	ReadOnly       *bool  `mapstructure:"read_only"`
}

// IsReadOnly defaults to true when read_only is not set.
func (p PipelineConfig) IsReadOnly() bool {
	return p.ReadOnly == nil || *p.ReadOnly
}

type GenAIConfig struct {
	Provider       string  `mapstructure:"provider"` // ollama | openai
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	Timeout        int     `mapstructure:"timeout"` // milliseconds
	MaxRetries     int     `mapstructure:"max_retries"`
	RetryBaseDelay int     `mapstructure:"retry_base_delay"` // milliseconds
}

type DatabaseConfig struct {
	Relational RelationalConfig `mapstructure:"relational"`
	Document   DocumentConfig   `mapstructure:"document"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type RelationalConfig struct {
	Driver         string `mapstructure:"driver"` // postgres | pgx | sqlite
	DSN            string `mapstructure:"dsn"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	Schema         string `mapstructure:"schema"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

// Enabled reports whether enough is configured to open a connection.
func (r RelationalConfig) Enabled() bool {
	return r.DSN != "" || r.Host != ""
}

// GetDSN returns the connection string for the configured driver.
func (r RelationalConfig) GetDSN() string {
	if r.DSN != "" {
		return r.DSN
	}
	if r.Driver == "pgx" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(r.User, r.Password),
			Host:     fmt.Sprintf("%s:%d", r.Host, r.Port),
			Path:     "/" + r.Database,
			RawQuery: "sslmode=" + r.SSLMode,
		}
		return u.String()
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		r.Host, r.Port, r.User, r.Password, r.Database, r.SSLMode,
	)
}

type DocumentConfig struct {
	Driver    string   `mapstructure:"driver"` // mongo | elasticsearch | memory
	URI       string   `mapstructure:"uri"`
	Database  string   `mapstructure:"database"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Timeout   int      `mapstructure:"timeout"` // milliseconds
}

// Enabled reports whether a document backend is configured.
func (d DocumentConfig) Enabled() bool {
	switch d.Driver {
	case "memory":
		return true
	case "elasticsearch":
		return len(d.Addresses) > 0
	default:
		return d.URI != ""
	}
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SchemaCacheConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TTL       int    `mapstructure:"ttl"` // milliseconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SandboxConfig struct {
	Timeout      int `mapstructure:"timeout"` // milliseconds
	MaxCallStack int `mapstructure:"max_call_stack"`
	RegistryMax  int `mapstructure:"registry_max"`
	MaxDocuments int `mapstructure:"max_documents"`
	MaxMemoryMB  int `mapstructure:"max_memory_mb"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}
