package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the provided struct using `env`
// tags. The API and worker configs in internal/config are the two callers;
// cross-field validation (store driver, stage name, funds mode) stays with
// them, this layer only parses.
//
// Example:
//
//	type Worker struct {
//	    Stage      string `env:"WORKER_STAGE,required"`
//	    StageDelay time.Duration `env:"STAGE_DELAY" envDefault:"5s"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
