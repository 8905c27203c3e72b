package builtin

import (
	"context"
	"sort"

	"crashpipe/pkg/records"
)

// ImputeConst replaces null values of Columns with Value.
type ImputeConst struct {
	Step    string
	Columns []string
	Value   any
}

// Name implements transformer.Transformer.
func (i ImputeConst) Name() string {
	if i.Step != "" {
		return i.Step
	}
	return "impute_const"
}

// Apply implements transformer.Transformer.
func (i ImputeConst) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		for _, c := range i.Columns {
			if r[c] == nil {
				r[c] = i.Value
			}
		}
	}
	return in, nil
}

// ImputeMedian replaces null numeric values with the median of the non-null
// values of the same column in this batch. A column with no values stays
// null.
type ImputeMedian struct {
	Columns []string
}

// Name implements transformer.Transformer.
func (ImputeMedian) Name() string { return "impute_median" }

// Apply implements transformer.Transformer.
func (m ImputeMedian) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, c := range m.Columns {
		var vals []float64
		missing := 0
		for _, r := range in {
			if f, ok := ToFloat(r[c]); ok {
				vals = append(vals, f)
			} else {
				missing++
			}
		}
		if missing == 0 || len(vals) == 0 {
			continue
		}
		med := Median(vals)
		for _, r := range in {
			if _, ok := ToFloat(r[c]); !ok {
				r[c] = med
			}
		}
	}
	return in, nil
}

// Median returns the median of vals (mean of the middle pair for even
// lengths). vals is sorted in place.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
