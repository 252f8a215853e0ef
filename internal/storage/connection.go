package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lugondev/go-vaultswap/internal/config"
)

// DatabaseType names a journal backend in database.type.
type DatabaseType string

const (
	DatabaseTypeMemory   DatabaseType = "memory"
	DatabaseTypeJSONL    DatabaseType = "jsonl"
	DatabaseTypeMongoDB  DatabaseType = "mongodb"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Factory opens a Repository from the database section of the configuration.
type Factory func(ctx context.Context, cfg *config.DatabaseConfig) (Repository, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[DatabaseType]Factory{
		DatabaseTypeMemory: func(context.Context, *config.DatabaseConfig) (Repository, error) {
			return NewMemoryRepository(), nil
		},
	}
)

// RegisterFactory makes a backend available under typ. Backend packages call
// it from init, so importing them for side effects is enough.
func RegisterFactory(typ DatabaseType, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[typ] = factory
}

// RegisteredTypes lists the backends that can currently be opened.
func RegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for typ := range factories {
		names = append(names, string(typ))
	}
	sort.Strings(names)
	return names
}

// ConnectionManager opens the configured backend once and hands out the
// same Repository afterwards.
type ConnectionManager struct {
	config *config.DatabaseConfig

	mu   sync.Mutex
	repo Repository
}

func NewConnectionManager(cfg *config.DatabaseConfig) (*ConnectionManager, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("database is not enabled in configuration")
	}
	return &ConnectionManager{config: cfg}, nil
}

// Connect opens and pings the backend on first use.
func (cm *ConnectionManager) Connect(ctx context.Context) (Repository, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.repo != nil {
		return cm.repo, nil
	}

	factoriesMu.RLock()
	factory, ok := factories[DatabaseType(cm.config.Type)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q (registered: %v)", cm.config.Type, RegisteredTypes())
	}

	repo, err := factory(ctx, cm.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cm.repo = repo
	return repo, nil
}

// GetRepository returns the connected repository.
func (cm *ConnectionManager) GetRepository() (Repository, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.repo == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return cm.repo, nil
}

// Close closes the repository, if one was opened.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.repo == nil {
		return nil
	}
	err := cm.repo.Close()
	cm.repo = nil
	return err
}
