// Package clean turns the merged crash CSV into rows that fit the gold
// schema. The rules run in a fixed order; later rules read columns written
// by earlier ones.
package clean

import (
	"context"
	"fmt"

	"crashpipe/internal/job"
	"crashpipe/internal/merge"
	"crashpipe/internal/metrics"
	"crashpipe/internal/objstore"
	"crashpipe/internal/transformer"
	"crashpipe/internal/transformer/builtin"
	"crashpipe/pkg/records"

	"github.com/rs/zerolog"
)

// StageName labels logs and metrics of the clean stage.
const StageName = "cleaner"

// Engine reads merged CSVs and applies the crash rule set.
type Engine struct {
	Store objstore.Store
	Log   zerolog.Logger
}

// Rules returns the ordered rule chain.
func Rules(log zerolog.Logger) transformer.Chain {
	steps := []transformer.Transformer{
		builtin.Normalize{},
		builtin.Project{Columns: RequiredColumns},
		builtin.Require{Fields: []string{IDColumn}},
		builtin.Coerce{Numeric: NumericColumns},
		builtin.Boolean{Columns: BooleanColumns},
		builtin.Derive{Target: "is_weekend", Fn: IsWeekend},
		builtin.Derive{Target: "hour_bin", Fn: HourBin},
		builtin.DateNormalize{Column: DateColumn},
		builtin.GeoFilter{Lat: "latitude", Lng: "longitude", Envelope: Envelope},
	}
	for _, col := range vocabOrder {
		c := builtin.Categorical{Column: col, Vocabulary: Vocabularies[col]}
		if col == "weather_condition" {
			c.Fold = SnowFold
		}
		steps = append(steps, c)
	}
	steps = append(steps,
		builtin.ImputeConst{Step: "impute_zero", Columns: []string{"injuries_total"}, Value: 0.0},
		builtin.ImputeMedian{Columns: MedianColumns},
		builtin.GeoBin{
			Lat: "latitude", Lng: "longitude",
			Precision: 2,
			LatBin:    "lat_bin", LngBin: "lng_bin", GridID: "grid_id",
		},
		builtin.ImputeConst{Step: "impute_other", Columns: CategoricalColumns, Value: builtin.Other},
	)
	for _, c := range Caps {
		steps = append(steps, c)
	}
	return transformer.Chain{Stage: StageName, Steps: steps, Log: log}
}

// Clean applies the rule chain to rows. Any rule error fails the whole batch.
func (e *Engine) Clean(ctx context.Context, rows []records.Record) ([]records.Record, error) {
	out, err := Rules(e.Log).Apply(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	return out, nil
}

// Run reads the merged CSV of c and returns the cleaned rows.
func (e *Engine) Run(ctx context.Context, c job.Clean) ([]records.Record, error) {
	key := merge.OutputKey(c.Prefix, c.CorrID)
	t, err := ReadMerged(ctx, e.Store, c.XformBucket, key)
	if err != nil {
		return nil, err
	}
	metrics.RecordRow(StageName, "read", int64(t.Len()))
	e.Log.Info().Str("corr_id", c.CorrID).Int("rows", t.Len()).Int("cols", len(t.Columns)).Msg("loaded merged csv")

	out, err := e.Clean(ctx, t.Rows)
	if err != nil {
		return nil, err
	}
	e.Log.Info().Str("corr_id", c.CorrID).Int("rows_in", t.Len()).Int("rows_out", len(out)).Msg("cleaned")
	return out, nil
}
