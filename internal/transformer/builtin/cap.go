package builtin

import (
	"context"

	"crashpipe/pkg/records"
)

// Cap clamps numeric values of Column above Max down to Max. Null and
// non-numeric values are left alone.
type Cap struct {
	Column string
	Max    float64
}

// Name implements transformer.Transformer.
func (c Cap) Name() string { return "cap_" + c.Column }

// Apply implements transformer.Transformer.
func (c Cap) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		if f, ok := ToFloat(r[c.Column]); ok && f > c.Max {
			r[c.Column] = c.Max
		}
	}
	return in, nil
}
