// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline stages.
//
// It exposes a narrow interface (Backend) focused on counters, gauges and
// timing data, and a global pluggable backend that defaults to a no-op
// implementation so metrics are always safe to call. Concrete systems
// (Prometheus, Datadog) live in subpackages.
//
// The job path only writes metrics; nothing in the pipeline reads them back.
package metrics

import (
	"context"
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "crashpipe_step_total"
	StepDurationSeconds = "crashpipe_step_duration_seconds"
	RowsTotal           = "crashpipe_rows_total"
	JobsTotal           = "crashpipe_jobs_total"
	JobDurationSeconds  = "crashpipe_job_duration_seconds"
	JobsInProgress      = "crashpipe_jobs_in_progress"
	IODurationSeconds   = "crashpipe_io_duration_seconds"
	UptimeSeconds       = "crashpipe_uptime_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge sets a gauge to value.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}

	inflightMu sync.Mutex
	inflight   = map[string]int{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and success/failure of one named step.
func RecordStep(stage, step string, err error, d time.Duration) {
	lbls := Labels{"stage": stage, "step": step, "status": status(err)}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter. Typical kinds are "read",
// "written", "dropped", "inserted" and "skipped". Non-positive deltas are
// ignored.
func RecordRow(stage, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"stage": stage, "kind": kind})
}

// RecordJob counts one finished job with status "success", "failure" or
// "ignored" and observes its duration.
func RecordJob(stage, status string, d time.Duration) {
	b := current()
	b.IncCounter(JobsTotal, 1, Labels{"stage": stage, "status": status})
	if status != "ignored" {
		b.ObserveHistogram(JobDurationSeconds, d.Seconds(), Labels{"stage": stage})
	}
}

// RecordIO observes the duration of an object store operation ("read" or "write").
func RecordIO(stage, op string, d time.Duration) {
	current().ObserveHistogram(IODurationSeconds, d.Seconds(), Labels{"stage": stage, "op": op})
}

// JobStarted bumps the in-progress gauge for stage and returns the function
// that lowers it again.
func JobStarted(stage string) func() {
	setInflight(stage, 1)
	return func() { setInflight(stage, -1) }
}

func setInflight(stage string, delta int) {
	inflightMu.Lock()
	inflight[stage] += delta
	v := inflight[stage]
	inflightMu.Unlock()
	current().SetGauge(JobsInProgress, float64(v), Labels{"stage": stage})
}

// RunUptime sets the uptime gauge every interval until ctx is done. It runs
// independently of job processing.
func RunUptime(ctx context.Context, stage string, interval time.Duration) {
	start := time.Now()
	lbls := Labels{"stage": stage}
	current().SetGauge(UptimeSeconds, 0, lbls)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			current().SetGauge(UptimeSeconds, now.Sub(start).Seconds(), lbls)
		}
	}
}
