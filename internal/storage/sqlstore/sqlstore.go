// Package sqlstore implements storage.Repository on top of database/sql for
// embedded engines (SQLite, DuckDB). Backend packages supply a Dialect and an
// opened *sql.DB; this package owns the SQL.
//
// Inserts run inside a single transaction with a prepared
// INSERT ... ON CONFLICT DO NOTHING statement per batch.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crashpipe/internal/ddl"
	"crashpipe/internal/storage"
)

// Dialect captures the per-engine differences.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite".
	Name string
	// Schemas reports whether the engine supports CREATE SCHEMA. When false,
	// a dotted table name is flattened to "schema_table".
	Schemas bool
	// TypeMap rewrites portable column types (see ddl.Options.TypeMap).
	TypeMap map[string]string
}

// Repository is a database/sql implementation of storage.Repository.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	def     ddl.TableDef
}

var _ storage.Repository = (*Repository)(nil)

// New wraps an opened database. The table definition's FQN is flattened when
// the dialect has no schemas.
func New(db *sql.DB, d Dialect, def ddl.TableDef) *Repository {
	if !d.Schemas {
		def.FQN = strings.ReplaceAll(def.FQN, ".", "_")
	}
	return &Repository{db: db, dialect: d, def: def}
}

// Table returns the effective table definition.
func (r *Repository) Table() ddl.TableDef { return r.def }

func (r *Repository) opts() ddl.Options {
	return ddl.Options{Quote: ddl.DoubleQuote, TypeMap: r.dialect.TypeMap}
}

func (r *Repository) fqn() string { return ddl.QuoteFQN(r.def.FQN, ddl.DoubleQuote) }

func (r *Repository) errf(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", r.dialect.Name, op, err)
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if r.dialect.Schemas {
		if stmt := ddl.BuildCreateSchemaSQL(r.def.FQN, r.opts()); stmt != "" {
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return r.errf("create schema", err)
			}
		}
	}
	stmt, err := ddl.BuildCreateTableSQL(r.def, r.opts())
	if err != nil {
		return r.errf("build ddl", err)
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return r.errf("create table", err)
	}
	return nil
}

// CountRows implements storage.Repository.
func (r *Repository) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.fqn()).Scan(&n); err != nil {
		return 0, r.errf("count", err)
	}
	return n, nil
}

// CopyFrom implements storage.Repository.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: CopyFrom: columns must not be empty", r.dialect.Name)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ddl.DoubleQuote(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		r.fqn(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, r.errf("begin tx", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, r.errf("prepare insert", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: CopyFrom: row length %d != columns length %d", r.dialect.Name, len(row), len(columns))
		}
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			_ = tx.Rollback()
			return 0, r.errf("insert", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, r.errf("commit", err)
	}
	return inserted, nil
}

// DuplicateKeys implements storage.Repository.
func (r *Repository) DuplicateKeys(ctx context.Context, limit int) ([]storage.KeyCount, error) {
	keys := r.def.KeyColumns()
	q := DuplicateKeysSQL(r.fqn(), keys, limit)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, r.errf("duplicate keys", err)
	}
	defer rows.Close()

	var out []storage.KeyCount
	for rows.Next() {
		vals := make([]sql.NullString, len(keys))
		dest := make([]any, 0, len(keys)+1)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		var kc storage.KeyCount
		dest = append(dest, &kc.Count)
		if err := rows.Scan(dest...); err != nil {
			return nil, r.errf("scan duplicate keys", err)
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.String
		}
		kc.Key = strings.Join(parts, "|")
		out = append(out, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.errf("duplicate keys", err)
	}
	return out, nil
}

// CountNullKeys implements storage.Repository.
func (r *Repository) CountNullKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, NullKeysSQL(r.fqn(), r.def.KeyColumns())).Scan(&n); err != nil {
		return 0, r.errf("null keys", err)
	}
	return n, nil
}

// Close implements storage.Repository.
func (r *Repository) Close() error {
	if err := r.db.Close(); err != nil {
		return r.errf("close", err)
	}
	return nil
}

// DuplicateKeysSQL renders the grouped duplicate-key query. table must already
// be quoted.
func DuplicateKeysSQL(table string, keys []string, limit int) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = ddl.DoubleQuote(k)
	}
	cols := strings.Join(quoted, ", ")
	if limit <= 0 {
		limit = 5
	}
	return fmt.Sprintf(
		"SELECT %s, COUNT(*) AS c FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY c DESC LIMIT %d",
		cols, table, cols, limit,
	)
}

// NullKeysSQL renders the null-key count query. table must already be quoted.
func NullKeysSQL(table string, keys []string) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = ddl.DoubleQuote(k) + " IS NULL"
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, strings.Join(conds, " OR "))
}
