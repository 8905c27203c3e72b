// Package storage contains the backend-agnostic contract for the analytic
// (gold) store plus a small registry that lets backends plug themselves in
// from init.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"crashpipe/internal/ddl"
)

// Config selects a backend and the table it manages.
type Config struct {
	// Kind is the registered backend name: "sqlite", "duckdb" or "postgres".
	Kind string
	// DSN is a file path for embedded stores or a connection string.
	DSN string
	// Table is the managed table. Its FQN may be "schema.table".
	Table ddl.TableDef
}

// KeyCount is one key value that occurs Count times.
type KeyCount struct {
	Key   string
	Count int64
}

// Repository is the contract every gold store backend implements.
type Repository interface {
	// EnsureTable creates the schema and table when absent. It is idempotent.
	EnsureTable(ctx context.Context) error
	// CountRows returns the current row count of the table.
	CountRows(ctx context.Context) (int64, error)
	// CopyFrom inserts rows aligned to columns, skipping any row whose primary
	// key already exists. It returns the number of rows the backend reports
	// as inserted.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// DuplicateKeys returns up to limit primary-key values that occur more
	// than once, most frequent first.
	DuplicateKeys(ctx context.Context, limit int) ([]KeyCount, error)
	// CountNullKeys returns the number of rows with a null key column.
	CountNullKeys(ctx context.Context) (int64, error)
	// Close releases the underlying connection.
	Close() error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(kind)] = f
}

// Kinds lists the registered backend names in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for kind=%q (have %v)", cfg.Kind, Kinds())
	}
	if len(cfg.Table.KeyColumns()) == 0 {
		return nil, fmt.Errorf("storage: table %s has no primary key", cfg.Table.FQN)
	}
	return f(ctx, cfg)
}
