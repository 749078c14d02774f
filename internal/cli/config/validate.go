package config

import (
	"github.com/structbio/ddgscan/internal/errdefs"
)

// Validate checks the loaded configuration. Engine binary presence is
// checked later, by the commands that actually spawn the engine, so that
// help and positions work without one.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errdefs.Validation("workers must be at least 1", nil)
	}
	if c.Replicates < 1 {
		return errdefs.Validation("replicates must be at least 1", nil)
	}
	if c.Engine.TimeoutSeconds < 0 {
		return errdefs.Validation("engine.timeout_seconds cannot be negative", nil)
	}
	return nil
}
