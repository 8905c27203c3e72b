// Package postgres implements the Postgres gold store using pgx v5. Inserts
// COPY into a transaction-scoped temp table and then move rows into the
// target with INSERT ... ON CONFLICT DO NOTHING, so existing keys are skipped.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crashpipe/internal/ddl"
	"crashpipe/internal/storage"
	"crashpipe/internal/storage/sqlstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	def  ddl.TableDef
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	r := &Repository{pool: pool, def: cfg.Table}
	return r, func() { _ = r.Close() }, nil
}

func (r *Repository) fqn() string { return ddl.QuoteFQN(r.def.FQN, ddl.DoubleQuote) }

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	opt := ddl.Options{Quote: ddl.DoubleQuote}
	if stmt := ddl.BuildCreateSchemaSQL(r.def.FQN, opt); stmt != "" {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: create schema: %w", err)
		}
	}
	stmt, err := ddl.BuildCreateTableSQL(r.def, opt)
	if err != nil {
		return fmt.Errorf("postgres: build ddl: %w", err)
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// CountRows implements storage.Repository.
func (r *Repository) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.fqn()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// CopyFrom implements storage.Repository.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tmp := "tmp_" + strings.ReplaceAll(r.def.FQN, ".", "_")
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		ddl.DoubleQuote(tmp), r.fqn(),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("postgres: create temp: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, columns, pgx.CopyFromRows(rows)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("postgres: copy into temp: %w", err)
	}

	cols := mapIdent(columns)
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		r.fqn(),
		strings.Join(cols, ", "),
		strings.Join(cols, ", "),
		ddl.DoubleQuote(tmp),
		strings.Join(mapIdent(r.def.KeyColumns()), ", "),
	)
	tag, err := tx.Exec(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert phase: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DuplicateKeys implements storage.Repository.
func (r *Repository) DuplicateKeys(ctx context.Context, limit int) ([]storage.KeyCount, error) {
	keys := r.def.KeyColumns()
	rows, err := r.pool.Query(ctx, sqlstore.DuplicateKeysSQL(r.fqn(), keys, limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: duplicate keys: %w", err)
	}
	defer rows.Close()

	var out []storage.KeyCount
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan duplicate keys: %w", err)
		}
		parts := make([]string, 0, len(keys))
		for _, v := range vals[:len(keys)] {
			parts = append(parts, fmt.Sprint(v))
		}
		n, _ := vals[len(keys)].(int64)
		out = append(out, storage.KeyCount{Key: strings.Join(parts, "|"), Count: n})
	}
	return out, rows.Err()
}

// CountNullKeys implements storage.Repository.
func (r *Repository) CountNullKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, sqlstore.NullKeysSQL(r.fqn(), r.def.KeyColumns())).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: null keys: %w", err)
	}
	return n, nil
}

// Close implements storage.Repository.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ddl.DoubleQuote(c)
	}
	return out
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, _, err := NewRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}
