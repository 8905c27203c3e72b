package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crashpipe/pkg/records"
)

// DefaultDateLayouts are tried in order when parsing date strings.
var DefaultDateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"01/02/2006 03:04:05 PM",
	"2006-01-02",
}

// DateNormalize drops records whose Column is null, parses the rest and
// truncates them to midnight UTC. A value that matches no layout fails the
// whole batch.
type DateNormalize struct {
	Column  string
	Layouts []string
}

// Name implements transformer.Transformer.
func (DateNormalize) Name() string { return "date" }

// Apply implements transformer.Transformer.
func (d DateNormalize) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	layouts := d.Layouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	out := in[:0]
	for _, r := range in {
		v := r[d.Column]
		if v == nil {
			continue
		}
		t, err := parseDate(v, layouts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Column, err)
		}
		r[d.Column] = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, r)
	}
	return out, nil
}

func parseDate(v any, layouts []string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, l := range layouts {
			if ts, err := time.Parse(l, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return time.Time{}, fmt.Errorf("unsupported date value %T", v)
}
