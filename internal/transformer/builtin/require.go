package builtin

import (
	"context"

	"crashpipe/pkg/records"
)

// Require removes any record missing a value for one of Fields.
type Require struct {
	Fields []string
}

// Name implements transformer.Transformer.
func (Require) Name() string { return "require" }

// Apply returns only records that have every required field present and
// non-empty.
func (r Require) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	out := in[:0]
	for _, rec := range in {
		ok := true
		for _, f := range r.Fields {
			v, exists := rec[f]
			if !exists || v == nil || v == "" {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
