package store

import (
	"context"
	"fmt"

	"inventory-sync-service/internal/config"
)

// Store is the durable local persistence layer: one logical table of records
// per collection, one table of cached aggregate responses, and the pending
// action log. All failures surface as *CacheError.
type Store interface {
	// Records
	GetAll(ctx context.Context, collection string) ([]Record, error)
	GetByID(ctx context.Context, collection, id string) (Record, error)
	Put(ctx context.Context, collection string, record Record) error
	BulkPut(ctx context.Context, collection string, records []Record) error
	Delete(ctx context.Context, collection, id string) error
	Clear(ctx context.Context, collection string) error
	Stats(ctx context.Context) (*Stats, error)

	// Cache entries
	GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	ListCacheKeys(ctx context.Context) ([]string, error)
	ClearCacheEntries(ctx context.Context) error

	// Pending actions
	InsertAction(ctx context.Context, action *PendingAction) error
	ListActions(ctx context.Context, status string) ([]*PendingAction, error)
	UpdateActionStatus(ctx context.Context, id, status, errorMessage string) error
	CountActions(ctx context.Context, status string) (int, error)
	DeleteActionsByStatus(ctx context.Context, status string) (int, error)

	// General
	Close() error
}

// New opens the store backend selected by config. SQLite is the default.
func New(cfg config.StateStorage) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteStore(cfg.FilePath)
	case "mysql":
		return NewMySQLStore(cfg)
	default:
		return nil, fmt.Errorf("unknown state storage type: %s", cfg.Type)
	}
}
