package clean

import (
	"context"
	"fmt"

	"crashpipe/internal/gold"
	"crashpipe/internal/job"
	"crashpipe/internal/storage"

	"github.com/rs/zerolog"
)

// Stage cleans the merged CSV of a clean job and loads it into gold. It is
// the last stage and publishes nothing.
type Stage struct {
	Engine *Engine
	Loader *gold.Loader
	// StoreKind is the registered gold backend ("sqlite", "duckdb", "postgres").
	StoreKind string
}

// Name implements runner.Stage.
func (s *Stage) Name() string { return StageName }

// Kind implements runner.Stage.
func (s *Stage) Kind() job.Kind { return job.KindClean }

// Handle implements runner.Stage.
func (s *Stage) Handle(ctx context.Context, j job.Job) (*job.Job, error) {
	c := j.Clean
	if c == nil {
		return nil, fmt.Errorf("clean: %w: clean payload", job.ErrMissingField)
	}
	rows, err := s.Engine.Run(ctx, *c)
	if err != nil {
		return nil, err
	}
	st, err := s.Loader.Write(ctx, rows, c.CorrID, s.storageConfig(c))
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)
	if !st.IntegrityPassed {
		log.Error().Interface("stats", st).Msg("gold integrity check failed")
	}
	return nil, nil
}

func (s *Stage) storageConfig(c *job.Clean) storage.Config {
	return storage.Config{Kind: s.StoreKind, DSN: c.GoldDBPath, Table: gold.Table(c.GoldTable)}
}
