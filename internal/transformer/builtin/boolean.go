package builtin

import (
	"context"
	"fmt"
	"strings"

	"crashpipe/pkg/records"
)

// DefaultTrueValues are the case-insensitive spellings mapped to 1.
var DefaultTrueValues = []string{"y", "yes", "true", "t", "1", "1.0"}

// Boolean maps flag columns to int64 1 or 0. A value is 1 when its trimmed,
// lower-cased text form is in TrueValues; everything else, null included,
// is 0.
type Boolean struct {
	Columns    []string
	TrueValues []string
}

// Name implements transformer.Transformer.
func (Boolean) Name() string { return "boolean" }

// Apply implements transformer.Transformer.
func (b Boolean) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	vals := b.TrueValues
	if len(vals) == 0 {
		vals = DefaultTrueValues
	}
	truthy := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		truthy[strings.ToLower(v)] = struct{}{}
	}
	for _, r := range in {
		for _, c := range b.Columns {
			r[c] = flag(r[c], truthy)
		}
	}
	return in, nil
}

func flag(v any, truthy map[string]struct{}) int64 {
	var s string
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		s = t
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		if t == 1 {
			return 1
		}
		return 0
	default:
		s = fmt.Sprint(t)
	}
	if _, ok := truthy[strings.ToLower(strings.TrimSpace(s))]; ok {
		return 1
	}
	return 0
}
