package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// CopyFn inserts rows aligned to columns and returns how many the backend
// reports as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches writes rows through copyFn in slices of at most batchSize and
// logs progress after each batch. It stops at the first copy error or when
// ctx is done, returning the count inserted so far.
func LoadBatches(ctx context.Context, log zerolog.Logger, columns []string, rows [][]any, batchSize int, copyFn CopyFn) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("loader: batch size must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("loader: copyFn must not be nil")
	}

	batches := (len(rows) + batchSize - 1) / batchSize
	var total int64
	for i := 0; i < batches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		lo := i * batchSize
		hi := min(lo+batchSize, len(rows))
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Error().Err(err).Int("batch", i+1).Int("of", batches).Msg("loader: copy failed")
			return total, fmt.Errorf("loader: batch %d/%d: %w", i+1, batches, err)
		}
		log.Debug().
			Int("batch", i+1).
			Int("of", batches).
			Int("rows", hi-lo).
			Int64("inserted", n).
			Int64("total_inserted", total).
			Msg("loader: batch written")
	}
	return total, nil
}
