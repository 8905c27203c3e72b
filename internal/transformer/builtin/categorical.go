package builtin

import (
	"context"
	"fmt"

	"crashpipe/pkg/records"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Other is the catch-all category.
const Other = "OTHER"

// Categorical upper-cases Column, applies Fold (exact, after upper-casing)
// and remaps anything outside Vocabulary, null included, to Other.
type Categorical struct {
	Column     string
	Vocabulary []string
	Fold       map[string]string
}

// Name implements transformer.Transformer.
func (c Categorical) Name() string { return "categorical_" + c.Column }

// Apply implements transformer.Transformer.
func (c Categorical) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	upper := cases.Upper(language.Und)
	vocab := make(map[string]struct{}, len(c.Vocabulary))
	for _, v := range c.Vocabulary {
		vocab[v] = struct{}{}
	}
	for _, r := range in {
		v := r[c.Column]
		if v == nil {
			r[c.Column] = Other
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		s = upper.String(s)
		if to, ok := c.Fold[s]; ok {
			s = to
		}
		if _, ok := vocab[s]; !ok {
			s = Other
		}
		r[c.Column] = s
	}
	return in, nil
}
