package builtin

import (
	"context"

	"crashpipe/pkg/records"
)

// Derive sets Target on every record to Fn(record).
type Derive struct {
	Target string
	Fn     func(records.Record) any
}

// Name implements transformer.Transformer.
func (d Derive) Name() string { return "derive_" + d.Target }

// Apply implements transformer.Transformer.
func (d Derive) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		r[d.Target] = d.Fn(r)
	}
	return in, nil
}
