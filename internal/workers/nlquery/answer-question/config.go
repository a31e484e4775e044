// internal/workers/nlquery/answer-question/config.go
package answerquestion

import (
	"time"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/models"
)

type Config struct {
	Timeout        time.Duration
	MaxJobsActive  int
	DefaultBackend models.Backend
}

func LoadConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)

	backend, err := models.ParseBackend(cfg.Pipeline.DefaultBackend)
	if err != nil {
		backend = models.BackendRelational
	}

	return &Config{
		Timeout:        config.GetDuration(wc.Timeout),
		MaxJobsActive:  wc.MaxJobsActive,
		DefaultBackend: backend,
	}
}
