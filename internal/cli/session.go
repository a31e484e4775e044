package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"nlquery-agent/internal/app"
	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/fixtures"
	"nlquery-agent/internal/models"
)

const demoSeed int64 = 42

// demoEnv points both backends at in-process stores.
var demoEnv = map[string]string{
	"DATABASE_RELATIONAL_DRIVER": "sqlite",
	"DATABASE_RELATIONAL_DSN":    ":memory:",
	"DATABASE_DOCUMENT_DRIVER":   "memory",
}

type session struct {
	app     *app.App
	cfg     *config.Config
	log     logger.Logger
	backend models.Backend
}

func loadConfig() (*config.Config, error) {
	if demoMode {
		for k, v := range demoEnv {
			if err := os.Setenv(k, v); err != nil {
				return nil, err
			}
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if cfg.Database.Relational.Driver == "sqlite" && cfg.Database.Relational.DSN == ":memory:" {
		// every pooled connection would see its own empty database
		cfg.Database.Relational.MaxConnections = 1
		cfg.Database.Relational.MaxIdle = 1
	}
	return cfg, nil
}

// openSession loads config, connects the stores and resolves the backend
// selected by --db. In-process stores are filled with the demo data set.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewStructured(logLevel, "console", "stderr")

	a, err := app.New(ctx, cfg, log, app.Options{ConnectAttempts: 1, RetryDelay: time.Second})
	if err != nil {
		return nil, err
	}

	s := &session{app: a, cfg: cfg, log: log}
	if err := s.seedInProcess(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	s.backend, err = resolveBackend(backendFlag, cfg.Pipeline.DefaultBackend)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) seedInProcess(ctx context.Context) error {
	now := time.Now()
	if s.app.Memory != nil {
		if _, err := fixtures.SeedDocuments(ctx, fixtures.MemoryWriter(s.app.Memory), demoSeed, now); err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
	}
	if demoMode && s.app.Relational != nil {
		if _, err := fixtures.SeedRelational(ctx, s.app.Relational, demoSeed, now); err != nil {
			return fmt.Errorf("seed sqlite: %w", err)
		}
	}
	return nil
}

func (s *session) Close() {
	s.app.Close(context.Background())
}

func resolveBackend(flag, fallback string) (models.Backend, error) {
	if flag != "" {
		return models.ParseBackend(flag)
	}
	return models.ParseBackend(fallback)
}
