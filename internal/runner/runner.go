// Package runner drives a pipeline stage from a queue: one message at a time,
// exactly one acknowledgement per message.
//
// Outcomes:
//   - type owned by another stage (or unknown): ack and drop
//   - malformed message, engine failure or failed downstream publish: nack
//     without requeue
//   - success: publish the downstream job (if any), then ack
package runner

import (
	"context"
	"errors"
	"time"

	"crashpipe/internal/job"
	"crashpipe/internal/metrics"
	"crashpipe/internal/queue"

	"github.com/rs/zerolog"
)

// Stage is a job engine bound to one job kind.
type Stage interface {
	// Name labels logs and metrics, e.g. "transformer".
	Name() string
	// Kind is the only job type this stage processes.
	Kind() job.Kind
	// Handle runs the job. A non-nil next job is published downstream.
	Handle(ctx context.Context, j job.Job) (next *job.Job, err error)
}

// Outcome is what the runner did with a delivery.
type Outcome string

const (
	Acked   Outcome = "success"
	Ignored Outcome = "ignored"
	Nacked  Outcome = "failure"
)

// Runner consumes deliveries for one Stage.
type Runner struct {
	Stage     Stage
	Defaults  job.Defaults
	Publisher queue.Publisher
	// NextQueue receives the downstream job. Empty disables publishing.
	NextQueue string
	Log       zerolog.Logger
}

// Run processes deliveries until the channel closes or ctx is done. A job
// already in progress is allowed to finish and is acknowledged before Run
// returns.
func (r *Runner) Run(ctx context.Context, deliveries <-chan queue.Delivery) error {
	r.Log.Info().Str("stage", r.Stage.Name()).Msg("waiting for jobs")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("runner: delivery stream closed")
			}
			r.Handle(context.WithoutCancel(ctx), d)
		}
	}
}

// Handle processes a single delivery and returns what was done with it.
func (r *Runner) Handle(ctx context.Context, d queue.Delivery) Outcome {
	stage := r.Stage.Name()
	start := time.Now()
	done := metrics.JobStarted(stage)
	defer done()

	log := r.Log.With().Str("stage", stage).Logger()

	j, err := job.Decode(d.Body(), r.Defaults)
	switch {
	case errors.Is(err, job.ErrMalformed):
		log.Error().Err(err).Msg("rejecting message")
		return r.settle(log, d, Nacked, start)
	case j.Kind != r.Stage.Kind():
		log.Info().Str("type", string(j.Kind)).Msg("ignoring message type")
		return r.settle(log, d, Ignored, start)
	case err != nil:
		log.Error().Err(err).Str("type", string(j.Kind)).Msg("rejecting message")
		return r.settle(log, d, Nacked, start)
	}

	log = log.With().Str("corr_id", j.CorrID()).Logger()
	log.Info().Str("type", string(j.Kind)).Msg("received job")

	next, err := r.Stage.Handle(log.WithContext(ctx), j)
	if err != nil {
		log.Error().Err(err).Msg("job failed")
		return r.settle(log, d, Nacked, start)
	}

	if next != nil && r.NextQueue != "" && r.Publisher != nil {
		body, err := job.Encode(*next)
		if err == nil {
			err = r.Publisher.Publish(ctx, r.NextQueue, body)
		}
		if err != nil {
			log.Error().Err(err).Str("queue", r.NextQueue).Msg("publish downstream job failed")
			return r.settle(log, d, Nacked, start)
		}
		log.Info().Str("queue", r.NextQueue).Str("type", string(next.Kind)).Msg("published downstream job")
	}

	return r.settle(log, d, Acked, start)
}

func (r *Runner) settle(log zerolog.Logger, d queue.Delivery, o Outcome, start time.Time) Outcome {
	var err error
	if o == Nacked {
		err = d.Nack(false)
	} else {
		err = d.Ack()
	}
	if err != nil {
		log.Error().Err(err).Str("outcome", string(o)).Msg("acknowledge failed")
	}
	dur := time.Since(start)
	metrics.RecordJob(r.Stage.Name(), string(o), dur)
	if o != Ignored {
		log.Info().Str("outcome", string(o)).Dur("duration", dur).Msg("job finished")
	}
	return o
}
