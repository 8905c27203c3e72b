// Package transformer runs ordered, named record transformations. Each step
// sees the output of the previous one; a step error aborts the chain so no
// partially transformed batch escapes.
package transformer

import (
	"context"
	"fmt"
	"time"

	"crashpipe/internal/metrics"
	"crashpipe/pkg/records"

	"github.com/rs/zerolog"
)

// Transformer is a single rule applied to a whole batch.
type Transformer interface {
	Name() string
	Apply(ctx context.Context, in []records.Record) ([]records.Record, error)
}

// Func adapts a function to Transformer.
type Func struct {
	Step string
	Fn   func(ctx context.Context, in []records.Record) ([]records.Record, error)
}

// Name implements Transformer.
func (f Func) Name() string { return f.Step }

// Apply implements Transformer.
func (f Func) Apply(ctx context.Context, in []records.Record) ([]records.Record, error) {
	return f.Fn(ctx, in)
}

// Chain is an ordered list of transformers labelled with the stage that owns
// it.
type Chain struct {
	Stage string
	Steps []Transformer
	Log   zerolog.Logger
}

// Apply runs every step in order. Each step is timed and reported to metrics;
// rows removed by a step are counted as "dropped".
func (c Chain) Apply(ctx context.Context, in []records.Record) ([]records.Record, error) {
	out := in
	for _, t := range c.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := len(out)
		start := time.Now()
		next, err := t.Apply(ctx, out)
		metrics.RecordStep(c.Stage, t.Name(), err, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("transformer: step %s: %w", t.Name(), err)
		}
		out = next
		if dropped := before - len(out); dropped > 0 {
			metrics.RecordRow(c.Stage, "dropped", int64(dropped))
			c.Log.Info().Str("step", t.Name()).Int("dropped", dropped).Int("remaining", len(out)).Msg("rows dropped")
		} else {
			c.Log.Debug().Str("step", t.Name()).Int("rows", len(out)).Msg("step done")
		}
	}
	return out, nil
}
