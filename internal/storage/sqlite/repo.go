// Package sqlite implements the SQLite gold store on the pure-Go
// modernc.org/sqlite driver. SQLite has no schemas, so "gold.crashes" is
// stored as "gold_crashes".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crashpipe/internal/storage"
	"crashpipe/internal/storage/sqlstore"

	_ "modernc.org/sqlite"
)

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:    "sqlite",
	Schemas: false,
	TypeMap: map[string]string{"DOUBLE PRECISION": "REAL"},
}

// NewRepository opens a SQLite database at cfg.DSN (creating the parent
// directory for file paths) and returns the repository plus a close function.
func NewRepository(ctx context.Context, cfg storage.Config) (*sqlstore.Repository, func(), error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if dir := filepath.Dir(dsn); !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Single connection keeps count queries and the insert tx on one writer.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	repo := sqlstore.New(db, Dialect, cfg.Table)
	return repo, func() { _ = repo.Close() }, nil
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := NewRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}
