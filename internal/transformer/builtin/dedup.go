package builtin

import (
	"context"
	"fmt"
	"strings"

	"crashpipe/pkg/records"
)

// DeDup collapses records that share a key, keeping the earliest
// occurrence. Winners keep their input order. Records missing a key field
// are passed through after the winners, in input order.
type DeDup struct {
	Keys []string
}

// Name implements transformer.Transformer.
func (DeDup) Name() string { return "dedup" }

// Apply implements transformer.Transformer.
func (d DeDup) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	if len(in) == 0 || len(d.Keys) == 0 {
		return in, nil
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]records.Record, 0, len(in))
	var passthrough []records.Record
	for _, r := range in {
		key, ok := keyOf(r, d.Keys)
		if !ok {
			passthrough = append(passthrough, r)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return append(out, passthrough...), nil
}

func keyOf(r records.Record, keys []string) (string, bool) {
	var b strings.Builder
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\x1f')
		}
		if s, ok := v.(string); ok {
			b.WriteString(s)
		} else {
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String(), true
}
