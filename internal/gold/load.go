package gold

import (
	"context"
	"fmt"
	"time"

	"crashpipe/internal/metrics"
	"crashpipe/internal/storage"
	"crashpipe/pkg/records"

	"github.com/rs/zerolog"
)

// DefaultBatchSize is the insert batch size when none is configured.
const DefaultBatchSize = 500

// DuplicateSampleSize bounds the duplicate keys reported by integrity checks.
const DuplicateSampleSize = 5

// Stats is the outcome of one load.
type Stats struct {
	BeforeCount     int64              `json:"before_count"`
	AfterCount      int64              `json:"after_count"`
	Inserted        int64              `json:"inserted"`
	Skipped         int64              `json:"skipped"`
	IntegrityPassed bool               `json:"integrity_passed"`
	DuplicateSample []storage.KeyCount `json:"duplicate_sample,omitempty"`
	NullKeys        int64              `json:"null_keys"`
}

// Report is the result of an integrity check.
type Report struct {
	Rows            int64              `json:"rows"`
	Passed          bool               `json:"passed"`
	DuplicateSample []storage.KeyCount `json:"duplicate_sample,omitempty"`
	NullKeys        int64              `json:"null_keys"`
}

// Loader writes cleaned rows into a gold store.
type Loader struct {
	Log       zerolog.Logger
	BatchSize int
	// Stage labels metrics; empty disables row counters.
	Stage string

	now func() time.Time
}

func (l *Loader) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now().UTC()
}

// Write ensures the table, inserts rows stamped with corrID skipping keys
// that already exist, and runs the integrity checks. The store is closed on
// every path. Integrity findings never fail the write.
func (l *Loader) Write(ctx context.Context, rows []records.Record, corrID string, cfg storage.Config) (st Stats, err error) {
	log := l.Log.With().Str("corr_id", corrID).Str("table", cfg.Table.FQN).Logger()

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return st, fmt.Errorf("gold: open %s: %w", cfg.Kind, err)
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close gold store")
		}
	}()

	if err := repo.EnsureTable(ctx); err != nil {
		return st, fmt.Errorf("gold: ensure table: %w", err)
	}
	if st.BeforeCount, err = repo.CountRows(ctx); err != nil {
		return st, fmt.Errorf("gold: count before: %w", err)
	}

	if err := l.insert(ctx, log, repo, rows, corrID, cfg); err != nil {
		return st, err
	}

	if st.AfterCount, err = repo.CountRows(ctx); err != nil {
		return st, fmt.Errorf("gold: count after: %w", err)
	}
	st.Inserted = st.AfterCount - st.BeforeCount
	st.Skipped = int64(len(rows)) - st.Inserted

	rep := Check(ctx, log, repo)
	st.IntegrityPassed = rep.Passed
	st.DuplicateSample = rep.DuplicateSample
	st.NullKeys = rep.NullKeys

	if l.Stage != "" {
		metrics.RecordRow(l.Stage, "inserted", st.Inserted)
		metrics.RecordRow(l.Stage, "skipped", st.Skipped)
	}
	log.Info().
		Int64("before_count", st.BeforeCount).
		Int64("after_count", st.AfterCount).
		Int64("inserted", st.Inserted).
		Int64("skipped", st.Skipped).
		Bool("integrity_passed", st.IntegrityPassed).
		Msg("gold load complete")
	return st, nil
}

func (l *Loader) insert(ctx context.Context, log zerolog.Logger, repo storage.Repository, rows []records.Record, corrID string, cfg storage.Config) error {
	if len(rows) == 0 {
		return nil
	}
	def := cfg.Table
	now := l.clock()
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		v, err := Row(def, r, corrID, now)
		if err != nil {
			return err
		}
		vals = append(vals, v)
	}

	batch := l.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if _, err := storage.LoadBatches(ctx, log, def.ColumnNames(), vals, batch, repo.CopyFrom); err != nil {
		return fmt.Errorf("gold: insert: %w", err)
	}
	return nil
}

// Check runs the key integrity checks: no key value may appear twice and no
// key may be null. A failing check query counts as a failed check.
func Check(ctx context.Context, log zerolog.Logger, repo storage.Repository) Report {
	rep := Report{Passed: true}
	var err error
	if rep.Rows, err = repo.CountRows(ctx); err != nil {
		log.Error().Err(err).Msg("integrity: count rows")
		rep.Passed = false
	}
	if rep.DuplicateSample, err = repo.DuplicateKeys(ctx, DuplicateSampleSize); err != nil {
		log.Error().Err(err).Msg("integrity: duplicate keys")
		rep.Passed = false
	}
	if len(rep.DuplicateSample) > 0 {
		log.Error().Interface("sample", rep.DuplicateSample).Msg("integrity: duplicate keys found")
		rep.Passed = false
	}
	if rep.NullKeys, err = repo.CountNullKeys(ctx); err != nil {
		log.Error().Err(err).Msg("integrity: null keys")
		rep.Passed = false
	}
	if rep.NullKeys > 0 {
		log.Error().Int64("null_keys", rep.NullKeys).Msg("integrity: null keys found")
		rep.Passed = false
	}
	log.Info().Int64("rows", rep.Rows).Bool("passed", rep.Passed).Msg("integrity check")
	return rep
}

// Verify opens the store, ensures the table exists and runs Check.
func Verify(ctx context.Context, log zerolog.Logger, cfg storage.Config) (Report, error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("gold: open %s: %w", cfg.Kind, err)
	}
	defer repo.Close()
	if err := repo.EnsureTable(ctx); err != nil {
		return Report{}, fmt.Errorf("gold: ensure table: %w", err)
	}
	return Check(ctx, log, repo), nil
}
