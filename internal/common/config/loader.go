// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile reads a single config file, then applies env overrides.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers keys that may only come from the environment, since
// AutomaticEnv alone does not surface keys missing from the file on Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"logging.level",
		"logging.format",
		"pipeline.default_backend",
		"pipeline.answer_language",
		"genai.provider",
		"genai.base_url",
		"genai.api_key",
		"genai.model",
		"database.relational.driver",
		"database.relational.dsn",
		"database.document.driver",
		"database.document.uri",
		"database.document.database",
		"database.redis.address",
		"camunda.enabled",
		"camunda.broker_address",
		"mcp.enabled",
	} {
		_ = v.BindEnv(key)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the plain environment names used by existing deployments.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Relational.DSN == "" {
		if val := os.Getenv("POSTGRES_URI"); val != "" {
			cfg.Database.Relational.DSN = val
		}
	}
	if cfg.Database.Relational.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Relational.User = val
		}
	}
	if cfg.Database.Relational.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Relational.Password = val
		}
	}

	if cfg.Database.Document.URI == "" {
		if val := os.Getenv("MONGO_URI"); val != "" {
			cfg.Database.Document.URI = val
		}
	}
	if cfg.Database.Document.Database == "" {
		if val := os.Getenv("MONGO_DB_NAME"); val != "" {
			cfg.Database.Document.Database = val
		}
	}

	if cfg.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.GenAI.APIKey = val
		}
	}

	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nlquery-agent"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 180000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 170000
	}

	// Pipeline defaults
	if cfg.Pipeline.DefaultBackend == "" {
		cfg.Pipeline.DefaultBackend = "relational"
	}
	if cfg.Pipeline.AnswerLanguage == "" {
		cfg.Pipeline.AnswerLanguage = "English"
	}
	if cfg.Pipeline.MaxResultChars == 0 {
		cfg.Pipeline.MaxResultChars = 12000
	}

	// GenAI defaults
	if cfg.GenAI.Provider == "" {
		cfg.GenAI.Provider = "ollama"
	}
	if cfg.GenAI.BaseURL == "" {
		if cfg.GenAI.Provider == "openai" {
			cfg.GenAI.BaseURL = "https://api.openai.com"
		} else {
			cfg.GenAI.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.GenAI.Model == "" {
		if cfg.GenAI.Provider == "openai" {
			cfg.GenAI.Model = "gpt-4o-mini"
		} else {
			cfg.GenAI.Model = "llama3"
		}
	}
	if cfg.GenAI.Timeout == 0 {
		cfg.GenAI.Timeout = 60000
	}
	if cfg.GenAI.RetryBaseDelay == 0 {
		cfg.GenAI.RetryBaseDelay = 100
	}

	// Database defaults
	rel := &cfg.Database.Relational
	if rel.Driver == "" {
		rel.Driver = "postgres"
	}
	if rel.Port == 0 && rel.Driver != "sqlite" {
		rel.Port = 5432
	}
	if rel.SSLMode == "" {
		rel.SSLMode = "disable"
	}
	if rel.Schema == "" && rel.Driver != "sqlite" {
		rel.Schema = "public"
	}
	if rel.MaxConnections == 0 {
		rel.MaxConnections = 25
	}
	if rel.MaxIdle == 0 {
		rel.MaxIdle = 5
	}

	doc := &cfg.Database.Document
	if doc.Driver == "" {
		doc.Driver = "mongo"
	}
	if doc.Timeout == 0 {
		doc.Timeout = 10000
	}

	if cfg.SchemaCache.TTL == 0 {
		cfg.SchemaCache.TTL = 300000
	}
	if cfg.SchemaCache.KeyPrefix == "" {
		cfg.SchemaCache.KeyPrefix = "nlquery:schema"
	}

	// Sandbox defaults
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = 5000
	}
	if cfg.Sandbox.MaxCallStack == 0 {
		cfg.Sandbox.MaxCallStack = 200
	}
	if cfg.Sandbox.RegistryMax == 0 {
		cfg.Sandbox.RegistryMax = 1024 * 80
	}
	if cfg.Sandbox.MaxDocuments == 0 {
		cfg.Sandbox.MaxDocuments = 1000
	}
	if cfg.Sandbox.MaxMemoryMB == 0 {
		cfg.Sandbox.MaxMemoryMB = 256
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 180000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	if cfg.MCP.Address == "" {
		cfg.MCP.Address = ":8090"
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = "/mcp"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.GenAI.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("genai.provider must be ollama or openai, got %q", cfg.GenAI.Provider)
	}
	if cfg.GenAI.Temperature < 0 || cfg.GenAI.Temperature > 2 {
		return fmt.Errorf("genai.temperature must be within [0, 2]")
	}

	switch cfg.Database.Relational.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		return fmt.Errorf("database.relational.driver must be postgres, pgx or sqlite")
	}
	switch cfg.Database.Document.Driver {
	case "mongo", "elasticsearch", "memory":
	default:
		return fmt.Errorf("database.document.driver must be mongo, elasticsearch or memory")
	}

	if !cfg.Database.Relational.Enabled() && !cfg.Database.Document.Enabled() {
		return fmt.Errorf("at least one of database.relational or database.document must be configured")
	}
	if cfg.Database.Document.Driver == "mongo" && cfg.Database.Document.URI != "" && cfg.Database.Document.Database == "" {
		return fmt.Errorf("database.document.database is required with a mongo uri")
	}

	if cfg.SchemaCache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when schema_cache is enabled")
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       180000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
