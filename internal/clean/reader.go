package clean

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"crashpipe/internal/metrics"
	"crashpipe/internal/objstore"
	"crashpipe/pkg/records"
)

// ErrMergedNotFound is returned when the merged CSV of a run is absent.
var ErrMergedNotFound = errors.New("clean: merged object not found")

// ReadMerged loads the merged CSV at bucket/key. Empty cells become null; an
// empty object is an empty table.
func ReadMerged(ctx context.Context, store objstore.Store, bucket, key string) (records.Table, error) {
	if _, err := store.Stat(ctx, bucket, key); err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return records.Table{}, fmt.Errorf("%w: s3://%s/%s", ErrMergedNotFound, bucket, key)
		}
		return records.Table{}, fmt.Errorf("clean: stat %s: %w", key, err)
	}
	start := time.Now()
	body, err := store.Get(ctx, bucket, key)
	metrics.RecordIO(StageName, "read", time.Since(start))
	if err != nil {
		return records.Table{}, fmt.Errorf("clean: get %s: %w", key, err)
	}
	return ParseCSV(body)
}

// ParseCSV decodes a header-first CSV into a table of string or null values.
func ParseCSV(body []byte) (records.Table, error) {
	var t records.Table
	if len(bytes.TrimSpace(body)) == 0 {
		return t, nil
	}
	cr := csv.NewReader(bytes.NewReader(body))
	header, err := cr.Read()
	if err != nil {
		return t, fmt.Errorf("clean: csv header: %w", err)
	}
	for _, h := range header {
		t.AddColumn(h)
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records.Table{}, fmt.Errorf("clean: csv: %w", err)
		}
		rec := make(records.Record, len(header))
		for i, h := range header {
			if row[i] == "" {
				rec[h] = nil
			} else {
				rec[h] = row[i]
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
