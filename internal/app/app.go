// Package app turns a loaded configuration into a ready pipeline together with
// the store handles it reads from. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/database"
	"nlquery-agent/internal/common/genai"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/common/observability"
	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/pipeline"
	"nlquery-agent/internal/pipeline/execute"
	"nlquery-agent/internal/pipeline/prompt"
	"nlquery-agent/internal/pipeline/schema"
	"nlquery-agent/internal/sandbox"
)

// Options tune how hard New tries to reach the stores.
type Options struct {
	// ConnectAttempts is the number of pings per store before giving up.
	ConnectAttempts int
	RetryDelay      time.Duration
	// Completion replaces the configured completion client, mostly for tests.
	Completion genai.Client
}

type App struct {
	Config        *config.Config
	Pipeline      *pipeline.Pipeline
	Observability *observability.Observability

	Relational *database.RelationalClient
	Documents  docstore.Store
	// Memory is set when the document driver is "memory"; the store starts empty.
	Memory *docstore.MemoryStore
	Mongo  *database.MongoClient
	Redis  *database.RedisClient

	checks  map[string]func(context.Context) error
	closers []func(context.Context) error
	logger  logger.Logger
}

// New connects every configured store and assembles the pipeline. A store
// that cannot be reached fails the whole build.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	a := &App{
		Config: cfg,
		checks: make(map[string]func(context.Context) error),
		logger: log.WithFields(map[string]interface{}{"component": "bootstrap"}),
	}
	a.Observability = observability.New(ctx, cfg.Observability, log)
	a.closers = append(a.closers, func(context.Context) error {
		a.Observability.Shutdown()
		return nil
	})

	built, err := a.build(ctx, cfg, log, opts)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.Pipeline = built
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*pipeline.Pipeline, error) {
	strategies := make(map[models.Backend]pipeline.Strategy)
	sqlDialect := ""

	if cfg.Database.Relational.Enabled() {
		client, err := a.openRelational(ctx, cfg.Database.Relational, opts)
		if err != nil {
			return nil, err
		}
		sqlDialect = client.Dialect.Name()
		strategies[models.BackendRelational] = pipeline.Strategy{
			Schema:   schema.NewRelationalBuilder(client),
			Executor: execute.NewRelationalExecutor(client, cfg.Pipeline.IsReadOnly()),
		}
	}

	if cfg.Database.Document.Enabled() {
		store, err := a.openDocuments(ctx, cfg.Database.Document, opts)
		if err != nil {
			return nil, err
		}
		sb := sandbox.New(store, sandbox.Config{
			Timeout:      config.GetDuration(cfg.Sandbox.Timeout),
			MaxCallStack: cfg.Sandbox.MaxCallStack,
			RegistryMax:  cfg.Sandbox.RegistryMax,
			MaxDocuments: cfg.Sandbox.MaxDocuments,
			MaxMemory:    uint64(cfg.Sandbox.MaxMemoryMB) << 20,
		})
		strategies[models.BackendDocument] = pipeline.Strategy{
			Schema:   schema.NewDocumentBuilder(store),
			Executor: execute.NewDocumentExecutor(sb),
		}
	}

	if len(strategies) == 0 {
		return nil, errors.New("no backend configured")
	}

	if cfg.SchemaCache.Enabled {
		a.Redis = database.NewRedis(cfg.Database.Redis)
		a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
		if err := retryWithBackoff(ctx, a.Redis.Ping, opts.ConnectAttempts, opts.RetryDelay, a.logger, "redis connection"); err != nil {
			return nil, err
		}
		a.checks["redis"] = a.Redis.Ping

		ttl := config.GetDuration(cfg.SchemaCache.TTL)
		for backend, strategy := range strategies {
			key := schema.CacheKey(cfg.SchemaCache.KeyPrefix, backend, sourceName(cfg, backend))
			strategy.Schema = schema.NewCachedBuilder(strategy.Schema, a.Redis.Client, key, ttl, log)
			strategies[backend] = strategy
		}
	}

	completion := opts.Completion
	if completion == nil {
		var err error
		completion, err = genai.New(cfg.GenAI, log)
		if err != nil {
			return nil, fmt.Errorf("completion client: %w", err)
		}
	}

	return pipeline.New(pipeline.Config{
		Strategies: strategies,
		Composer:   prompt.NewComposer(cfg.Pipeline.AnswerLanguage, cfg.Pipeline.MaxResultChars, sqlDialect),
		Completion: completion,
		ModelOptions: genai.Options{
			Model:       cfg.GenAI.Model,
			Temperature: cfg.GenAI.Temperature,
		},
		Observability: a.Observability,
	}, log), nil
}

func (a *App) openRelational(ctx context.Context, cfg config.RelationalConfig, opts Options) (*database.RelationalClient, error) {
	client, err := database.NewRelational(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	if err := retryWithBackoff(ctx, client.Ping, opts.ConnectAttempts, opts.RetryDelay, a.logger, cfg.Driver+" connection"); err != nil {
		return nil, err
	}
	a.Relational = client
	a.checks["relational"] = client.Ping
	a.logger.Info("relational store connected", map[string]interface{}{"driver": cfg.Driver})
	return client, nil
}

func (a *App) openDocuments(ctx context.Context, cfg config.DocumentConfig, opts Options) (docstore.Store, error) {
	var store docstore.Store

	switch cfg.Driver {
	case "memory":
		a.Memory = docstore.NewMemoryStore()
		store = a.Memory
	case "elasticsearch":
		es, err := database.NewElasticsearch(cfg)
		if err != nil {
			return nil, err
		}
		if err := retryWithBackoff(ctx, es.Ping, opts.ConnectAttempts, opts.RetryDelay, a.logger, "elasticsearch connection"); err != nil {
			return nil, err
		}
		store = docstore.NewElasticStore(es.Client)
	default:
		mc, err := database.NewMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mc.Close)
		if err := retryWithBackoff(ctx, mc.Ping, opts.ConnectAttempts, opts.RetryDelay, a.logger, "mongo connection"); err != nil {
			return nil, err
		}
		a.Mongo = mc
		store = docstore.NewMongoStore(mc.Database)
	}

	a.Documents = store
	a.checks["document"] = store.Ping
	a.logger.Info("document store connected", map[string]interface{}{"driver": cfg.Driver})
	return store, nil
}

// sourceName keeps cache keys of different databases apart.
func sourceName(cfg *config.Config, backend models.Backend) string {
	name := cfg.Database.Relational.Database
	if backend == models.BackendDocument {
		name = cfg.Database.Document.Database
	}
	if name == "" {
		return "default"
	}
	return name
}

// Checks returns one ping per connected store, keyed by a short name.
func (a *App) Checks() map[string]func(context.Context) error {
	out := make(map[string]func(context.Context) error, len(a.checks))
	for k, v := range a.checks {
		out[k] = v
	}
	return out
}

// Close releases everything New opened, last opened first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
}

// retryWithBackoff doubles the delay after every failed attempt.
func retryWithBackoff(ctx context.Context, operation func(context.Context) error, attempts int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		if err = operation(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		log.Warn(operationName+" failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     i + 1,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
}
