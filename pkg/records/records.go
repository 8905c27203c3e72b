// Package records holds the row types shared by the merge, clean and load
// stages.
package records

// Record is a single row keyed by lower-case column name. Absent keys and nil
// values are both treated as null.
type Record map[string]any

// Table is an ordered set of rows. Columns fixes the output order; rows may
// carry fewer keys than Columns.
type Table struct {
	Columns []string
	Rows    []Record
}

// HasColumn reports whether name is one of t's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the column order if it is not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }
