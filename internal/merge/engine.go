// Package merge builds the denormalized per-run CSV from the raw crash,
// vehicle and people pages of one correlation id.
package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crashpipe/internal/job"
	"crashpipe/internal/metrics"
	"crashpipe/internal/objstore"
	"crashpipe/pkg/records"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dataset aliases as laid out by the extractor.
const (
	Crashes  = "crashes"
	Vehicles = "vehicles"
	People   = "people"
)

// StageName labels logs and metrics of the merge stage.
const StageName = "transformer"

// Engine reads raw pages from Store and writes the merged CSV back to it.
type Engine struct {
	Store objstore.Store
	Log   zerolog.Logger
	// IDColumn defaults to DefaultIDColumn.
	IDColumn string

	now func() time.Time
}

// Result describes one merge run.
type Result struct {
	Bucket  string
	Key     string
	Rows    int
	Columns int
	Inputs  map[string]int
}

// Manifest is the lineage record written next to each run.
type Manifest struct {
	Corr       string         `json:"corr"`
	Stage      string         `json:"stage"`
	RawBucket  string         `json:"raw_bucket"`
	Output     string         `json:"output"`
	InputRows  map[string]int `json:"input_rows"`
	OutputRows int            `json:"output_rows"`
	OutputCols int            `json:"output_cols"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// OutputKey is where the merged CSV of corr lives.
func OutputKey(prefix, corr string) string {
	return fmt.Sprintf("%s/corr=%s/merged.csv", strings.Trim(prefix, "/"), corr)
}

// ManifestKey is where the merge manifest of corr lives.
func ManifestKey(corr string) string {
	return fmt.Sprintf("_runs/corr=%s/transformer.json", corr)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

// Run merges the pages of t.CorrID and writes the CSV and manifest to
// t.XformBucket.
func (e *Engine) Run(ctx context.Context, t job.Transform) (Result, error) {
	started := e.clock()
	log := e.Log.With().Str("corr_id", t.CorrID).Logger()

	if err := e.Store.EnsureBucket(ctx, t.XformBucket); err != nil {
		return Result{}, fmt.Errorf("merge: ensure bucket %s: %w", t.XformBucket, err)
	}

	aliases := []string{Crashes, Vehicles, People}
	tables := make([]records.Table, len(aliases))
	g, gctx := errgroup.WithContext(ctx)
	for i, alias := range aliases {
		g.Go(func() error {
			tbl, err := e.load(gctx, log, t.RawBucket, t.Prefix, alias, t.CorrID)
			if err != nil {
				return err
			}
			tables[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	inputs := map[string]int{}
	var read int64
	for i, alias := range aliases {
		inputs[alias] = tables[i].Len()
		read += int64(tables[i].Len())
	}
	metrics.RecordRow(StageName, "read", read)

	merged, err := Merge(ctx, tables[0], tables[1], tables[2], e.IDColumn)
	if err != nil {
		return Result{}, err
	}
	safe, err := CSVSafe(merged)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, safe); err != nil {
		return Result{}, fmt.Errorf("merge: write csv: %w", err)
	}
	key := OutputKey(t.Prefix, t.CorrID)
	start := time.Now()
	err = e.Store.Put(ctx, t.XformBucket, key, buf.Bytes(), CSVContentType)
	metrics.RecordIO(StageName, "write", time.Since(start))
	if err != nil {
		return Result{}, fmt.Errorf("merge: put %s: %w", key, err)
	}
	metrics.RecordRow(StageName, "written", int64(safe.Len()))

	res := Result{
		Bucket:  t.XformBucket,
		Key:     key,
		Rows:    safe.Len(),
		Columns: len(safe.Columns),
		Inputs:  inputs,
	}
	log.Info().
		Str("output", "s3://"+t.XformBucket+"/"+key).
		Int("rows", res.Rows).
		Int("cols", res.Columns).
		Msg("wrote merged csv")

	e.writeManifest(ctx, log, t, res, started)
	return res, nil
}

// load concatenates every page of alias that belongs to corr. Unreadable or
// malformed pages are skipped.
func (e *Engine) load(ctx context.Context, log zerolog.Logger, bucket, prefix, alias, corr string) (records.Table, error) {
	base := strings.Trim(prefix, "/") + "/" + alias + "/"
	keys, err := e.Store.List(ctx, bucket, base, true)
	if errors.Is(err, objstore.ErrNotFound) {
		log.Warn().Str("bucket", bucket).Msg("raw bucket not found")
		return records.Table{}, nil
	}
	if err != nil {
		return records.Table{}, fmt.Errorf("merge: list %s: %w", base, err)
	}

	needle := "/corr=" + corr + "/"
	var pages []records.Table
	for _, k := range keys {
		if !strings.Contains(k, needle) || !isPageKey(k) {
			continue
		}
		start := time.Now()
		body, err := e.Store.Get(ctx, bucket, k)
		metrics.RecordIO(StageName, "read", time.Since(start))
		if err != nil {
			if ctx.Err() != nil {
				return records.Table{}, ctx.Err()
			}
			log.Warn().Err(err).Str("key", k).Msg("skipping unreadable page")
			continue
		}
		tbl, ok := DecodePage(body)
		if !ok {
			log.Warn().Str("key", k).Msg("skipping malformed page")
			continue
		}
		pages = append(pages, tbl)
	}
	out := Concat(pages...)
	log.Info().Str("dataset", alias).Int("pages", len(pages)).Int("rows", out.Len()).Msg("loaded dataset")
	return out, nil
}

func isPageKey(k string) bool {
	return strings.HasSuffix(k, ".json") || strings.HasSuffix(k, ".json.gz") || strings.HasSuffix(k, ".json.zst")
}

func (e *Engine) writeManifest(ctx context.Context, log zerolog.Logger, t job.Transform, res Result, started time.Time) {
	m := Manifest{
		Corr:       t.CorrID,
		Stage:      StageName,
		RawBucket:  t.RawBucket,
		Output:     res.Key,
		InputRows:  res.Inputs,
		OutputRows: res.Rows,
		OutputCols: res.Columns,
		StartedAt:  started,
		FinishedAt: e.clock(),
	}
	b, _ := json.MarshalIndent(m, "", "  ")
	if err := e.Store.Put(ctx, t.XformBucket, ManifestKey(t.CorrID), b, "application/json"); err != nil {
		log.Warn().Err(err).Msg("manifest write failed")
	}
}
