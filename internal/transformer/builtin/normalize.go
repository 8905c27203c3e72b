package builtin

import (
	"context"
	"strings"

	"crashpipe/pkg/records"
)

// Normalize trims string values (including non-breaking spaces) and turns
// empty strings into null.
type Normalize struct{}

// Name implements transformer.Transformer.
func (Normalize) Name() string { return "normalize" }

// Apply implements transformer.Transformer.
func (Normalize) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		for k, v := range r {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
			if s == "" {
				r[k] = nil
			} else {
				r[k] = s
			}
		}
	}
	return in, nil
}
