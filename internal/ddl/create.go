// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render idempotent CREATE statements from that model.
//
// Identifier quoting is delegated to the caller through Options.Quote so the
// same TableDef can be rendered for SQLite, DuckDB and Postgres.
package ddl

import (
	"fmt"
	"strings"
)

// Options controls rendering.
type Options struct {
	// Quote quotes a single identifier part. Nil emits identifiers verbatim.
	Quote func(string) string
	// TypeMap rewrites portable types to dialect types, keyed by upper-case
	// portable type. Unmapped types are emitted as-is.
	TypeMap map[string]string
}

// DoubleQuote is the ANSI identifier quoter shared by SQLite, DuckDB and Postgres.
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteFQN quotes each dotted part of fqn with q.
func QuoteFQN(fqn string, q func(string) string) string {
	if q == nil {
		return fqn
	}
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = q(p)
	}
	return strings.Join(parts, ".")
}

// SplitFQN splits "schema.table" into its parts. A bare table name returns an
// empty schema.
func SplitFQN(fqn string) (schema, table string) {
	fqn = strings.TrimSpace(fqn)
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// BuildCreateTableSQL renders
//
//	CREATE TABLE IF NOT EXISTS <FQN> (
//	  <col> <type> [NOT NULL],
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
//
// t.FQN and every column Name and SQLType must be non-empty.
func BuildCreateTableSQL(t TableDef, opt Options) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	quote := opt.Quote
	if quote == nil {
		quote = func(s string) string { return s }
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.ToUpper(strings.TrimSpace(c.SQLType))
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		if mapped, ok := opt.TypeMap[typ]; ok {
			typ = mapped
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteFQN(fqn, quote),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildCreateSchemaSQL renders CREATE SCHEMA IF NOT EXISTS for the schema part
// of fqn, or "" when fqn has no schema.
func BuildCreateSchemaSQL(fqn string, opt Options) string {
	schema, _ := SplitFQN(fqn)
	if schema == "" {
		return ""
	}
	q := opt.Quote
	if q == nil {
		q = func(s string) string { return s }
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", q(schema))
}
