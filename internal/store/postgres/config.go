package postgres

import (
	"fmt"
	"time"
)

// ActivityStoreConfig holds configuration for the PostgreSQL activity store.
// Pool configuration is handled separately via PoolConfig.
type ActivityStoreConfig struct {
	// QueryTimeout bounds every query. Default: 5s
	QueryTimeout time.Duration

	// AutoMigrate applies pending migrations when the store is created.
	AutoMigrate bool
}

// Validate checks that the configuration is valid.
func (c *ActivityStoreConfig) Validate() error {
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *ActivityStoreConfig) ApplyDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 5 * time.Second
	}
}
