package builtin

import (
	"context"

	"crashpipe/pkg/records"
)

// Project keeps exactly Columns on every record. Columns absent from a record
// are added as null.
type Project struct {
	Columns []string
}

// Name implements transformer.Transformer.
func (Project) Name() string { return "project" }

// Apply implements transformer.Transformer.
func (p Project) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	out := make([]records.Record, len(in))
	for i, r := range in {
		nr := make(records.Record, len(p.Columns))
		for _, c := range p.Columns {
			nr[c] = r[c]
		}
		out[i] = nr
	}
	return out, nil
}
