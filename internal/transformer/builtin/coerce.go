package builtin

import (
	"context"
	"strconv"
	"strings"

	"crashpipe/pkg/records"
)

// Coerce converts string values of the listed columns to float64. Values
// that do not parse become null. Non-string values are converted when they
// are integer or float kinds and left alone otherwise.
type Coerce struct {
	Numeric []string
}

// Name implements transformer.Transformer.
func (Coerce) Name() string { return "coerce" }

// Apply implements transformer.Transformer.
func (c Coerce) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		for _, col := range c.Numeric {
			v, ok := r[col]
			if !ok || v == nil {
				r[col] = nil
				continue
			}
			f, ok := ToFloat(v)
			if ok {
				r[col] = f
			} else {
				r[col] = nil
			}
		}
	}
	return in, nil
}

// ToFloat converts common scalar kinds to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
