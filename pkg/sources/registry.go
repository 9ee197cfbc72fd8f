package sources

import (
	"fmt"
	"sync"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

// Factory creates a Source instance from its configuration.
type Factory func(cfg config.SourceConfig, logger *logging.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a source factory under a type name. Called from connector
// init functions.
func Register(sourceType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sourceType] = factory
}

// Create instantiates a source from its configuration.
func Create(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}

	return factory(cfg, logger)
}
