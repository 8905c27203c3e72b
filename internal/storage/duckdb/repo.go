// Package duckdb implements the DuckDB gold store through the go-duckdb
// database/sql driver.
package duckdb

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

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Dialect is the DuckDB flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:    "duckdb",
	Schemas: true,
	TypeMap: map[string]string{"TEXT": "VARCHAR", "DOUBLE PRECISION": "DOUBLE"},
}

// NewRepository opens (or creates) the DuckDB file at cfg.DSN.
func NewRepository(ctx context.Context, cfg storage.Config) (*sqlstore.Repository, func(), error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil, fmt.Errorf("duckdb: DSN must not be empty")
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("duckdb: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("duckdb: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("duckdb: ping: %w", err)
	}

	repo := sqlstore.New(db, Dialect, cfg.Table)
	return repo, func() { _ = repo.Close() }, nil
}

func init() {
	storage.Register("duckdb", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := NewRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}
