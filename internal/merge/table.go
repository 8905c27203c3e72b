package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"crashpipe/internal/transformer/builtin"
	"crashpipe/pkg/records"

	"github.com/zeebo/xxh3"
)

// DefaultIDColumn is the parent key shared by all three datasets.
const DefaultIDColumn = "crash_record_id"

// maxListColumns bounds how many text columns of a child dataset are
// collapsed into per-parent lists.
const maxListColumns = 5

// Concat appends the rows of every table into one, merging column orders.
func Concat(ts ...records.Table) records.Table {
	var out records.Table
	for _, t := range ts {
		for _, c := range t.Columns {
			out.AddColumn(c)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// Standardize lower-cases and trims column names and drops exact duplicate
// rows, keeping the first occurrence. When two source columns collapse to the
// same name the first value seen wins.
func Standardize(t records.Table) records.Table {
	var out records.Table
	rename := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c))
		rename[c] = n
		out.AddColumn(n)
	}

	seen := make(map[xxh3.Uint128]struct{}, len(t.Rows))
	var buf bytes.Buffer
	for _, r := range t.Rows {
		nr := make(records.Record, len(r))
		for _, c := range t.Columns {
			v, ok := r[c]
			if !ok {
				continue
			}
			n := rename[c]
			if _, dup := nr[n]; !dup {
				nr[n] = v
			}
		}
		buf.Reset()
		canon(&buf, out.Columns, nr)
		h := xxh3.Hash128(buf.Bytes())
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// canon writes a type-tagged encoding of r over columns, used for duplicate
// detection.
func canon(buf *bytes.Buffer, columns []string, r records.Record) {
	for i, c := range columns {
		v, ok := r[c]
		fmt.Fprintf(buf, "%d\x1f", i)
		switch {
		case !ok || v == nil:
			buf.WriteString("n")
		default:
			switch t := v.(type) {
			case string:
				buf.WriteString("s" + t)
			case json.Number:
				buf.WriteString("d" + string(t))
			case bool:
				fmt.Fprintf(buf, "b%t", t)
			default:
				b, _ := json.Marshal(t)
				buf.WriteString("j")
				buf.Write(b)
			}
		}
		buf.WriteByte('\x1e')
	}
}

func keyString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return string(t), true
	}
	return fmt.Sprint(v), true
}

// textColumns returns up to maxListColumns columns other than id whose
// non-null values are all strings, in column order. Columns with no values
// are not text.
func textColumns(t records.Table, id string) []string {
	var cols []string
	for _, c := range t.Columns {
		if c == id {
			continue
		}
		sawString := false
		text := true
		for _, r := range t.Rows {
			switch r[c].(type) {
			case nil:
			case string:
				sawString = true
			default:
				text = false
			}
			if !text {
				break
			}
		}
		if text && sawString {
			cols = append(cols, c)
			if len(cols) == maxListColumns {
				break
			}
		}
	}
	return cols
}

// Aggregate collapses child rows onto the parent key. Each output row holds
// the key, "<prefix>_count" and, per selected text column, the sorted
// distinct non-null values as "<prefix>_<col>_list". Rows without a key are
// ignored. Output order is first-seen key order.
func Aggregate(t records.Table, id, prefix string) records.Table {
	cols := textColumns(t, id)
	out := records.Table{Columns: []string{id, prefix + "_count"}}
	for _, c := range cols {
		out.AddColumn(listColumn(prefix, c))
	}

	type group struct {
		key    any
		count  int64
		values map[string]map[string]struct{}
	}
	index := map[string]*group{}
	var order []*group
	for _, r := range t.Rows {
		k, ok := keyString(r[id])
		if !ok {
			continue
		}
		g, exists := index[k]
		if !exists {
			g = &group{key: r[id], values: map[string]map[string]struct{}{}}
			index[k] = g
			order = append(order, g)
		}
		g.count++
		for _, c := range cols {
			s, ok := r[c].(string)
			if !ok {
				continue
			}
			if g.values[c] == nil {
				g.values[c] = map[string]struct{}{}
			}
			g.values[c][s] = struct{}{}
		}
	}

	for _, g := range order {
		rec := records.Record{id: g.key, prefix + "_count": g.count}
		for _, c := range cols {
			list := make([]string, 0, len(g.values[c]))
			for s := range g.values[c] {
				list = append(list, s)
			}
			sort.Strings(list)
			rec[listColumn(prefix, c)] = list
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

func listColumn(prefix, col string) string { return prefix + "_" + col + "_list" }

// LeftJoin adds child's columns (except the key) to every parent row with a
// matching key. Unmatched parents get nulls.
func LeftJoin(parent, child records.Table, id string) records.Table {
	byKey := make(map[string]records.Record, len(child.Rows))
	for _, r := range child.Rows {
		if k, ok := keyString(r[id]); ok {
			if _, dup := byKey[k]; !dup {
				byKey[k] = r
			}
		}
	}
	out := records.Table{Columns: append([]string(nil), parent.Columns...)}
	var extra []string
	for _, c := range child.Columns {
		if c != id && !out.HasColumn(c) {
			out.AddColumn(c)
			extra = append(extra, c)
		}
	}
	for _, r := range parent.Rows {
		nr := make(records.Record, len(r)+len(extra))
		for k, v := range r {
			nr[k] = v
		}
		var m records.Record
		if k, ok := keyString(r[id]); ok {
			m = byKey[k]
		}
		for _, c := range extra {
			if m != nil {
				nr[c] = m[c]
			} else {
				nr[c] = nil
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Merge denormalizes one run: crashes are standardized, vehicles and people
// are aggregated under the "veh" and "ppl" prefixes and left-joined onto
// them, and the result is de-duplicated by key with the first row winning.
// A parent table without the key column is returned standardized and
// unjoined.
func Merge(ctx context.Context, crashes, vehicles, people records.Table, id string) (records.Table, error) {
	if id == "" {
		id = DefaultIDColumn
	}
	id = strings.ToLower(id)
	crashes = Standardize(crashes)
	vehicles = Standardize(vehicles)
	people = Standardize(people)

	if crashes.Len() == 0 {
		return records.Table{}, nil
	}
	if !crashes.HasColumn(id) {
		return crashes, nil
	}

	out := crashes
	for _, child := range []struct {
		t      records.Table
		prefix string
	}{{vehicles, "veh"}, {people, "ppl"}} {
		if child.t.Len() == 0 || !child.t.HasColumn(id) {
			continue
		}
		out = LeftJoin(out, Aggregate(child.t, id, child.prefix), id)
	}

	rows, err := builtin.DeDup{Keys: []string{id}}.Apply(ctx, out.Rows)
	if err != nil {
		return records.Table{}, fmt.Errorf("merge: dedup: %w", err)
	}
	out.Rows = rows
	return out, nil
}

// CSVSafe replaces every column carrying list or object values with a
// "<name>_json" column holding the JSON encoding. Converted columns move to
// the end in their original order; nulls stay null.
func CSVSafe(t records.Table) (records.Table, error) {
	nested := map[string]bool{}
	for _, r := range t.Rows {
		for _, c := range t.Columns {
			switch r[c].(type) {
			case []string, []any, map[string]any:
				nested[c] = true
			}
		}
	}
	if len(nested) == 0 {
		return t, nil
	}

	var plain, converted []string
	for _, c := range t.Columns {
		if nested[c] {
			converted = append(converted, c)
		} else {
			plain = append(plain, c)
		}
	}
	out := records.Table{Columns: plain}
	for _, c := range converted {
		out.AddColumn(c + "_json")
	}
	for _, r := range t.Rows {
		nr := make(records.Record, len(out.Columns))
		for _, c := range plain {
			if v, ok := r[c]; ok {
				nr[c] = v
			}
		}
		for _, c := range converted {
			v := r[c]
			if v == nil {
				nr[c+"_json"] = nil
				continue
			}
			s, err := encodeJSON(v)
			if err != nil {
				return records.Table{}, fmt.Errorf("merge: encode %s: %w", c, err)
			}
			nr[c+"_json"] = s
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
