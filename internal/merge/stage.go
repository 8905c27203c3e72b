package merge

import (
	"context"
	"fmt"

	"crashpipe/internal/job"
)

// Stage runs the merge engine for transform jobs and hands the result to the
// clean stage.
type Stage struct {
	Engine *Engine
	// GoldDBPath and GoldTable are forwarded on the clean job.
	GoldDBPath string
	GoldTable  string
}

// Name implements runner.Stage.
func (s *Stage) Name() string { return StageName }

// Kind implements runner.Stage.
func (s *Stage) Kind() job.Kind { return job.KindTransform }

// Handle implements runner.Stage.
func (s *Stage) Handle(ctx context.Context, j job.Job) (*job.Job, error) {
	t := j.Transform
	if t == nil {
		return nil, fmt.Errorf("merge: %w: transform payload", job.ErrMissingField)
	}
	if _, err := s.Engine.Run(ctx, *t); err != nil {
		return nil, err
	}
	next := job.NewClean(job.Clean{
		CorrID:      t.CorrID,
		XformBucket: t.XformBucket,
		Prefix:      t.Prefix,
		GoldDBPath:  s.GoldDBPath,
		GoldTable:   s.GoldTable,
	})
	return &next, nil
}
