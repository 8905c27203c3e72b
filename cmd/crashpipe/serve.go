package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crashpipe/internal/clean"
	"crashpipe/internal/gold"
	"crashpipe/internal/job"
	"crashpipe/internal/logging"
	"crashpipe/internal/merge"
	"crashpipe/internal/metrics"
	"crashpipe/internal/metrics/datadog"
	"crashpipe/internal/metrics/prom"
	"crashpipe/internal/objstore"
	"crashpipe/internal/queue"
	"crashpipe/internal/runner"

	"github.com/spf13/cobra"
)

const uptimeInterval = 10 * time.Second

func newTransformerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transformer",
		Short: "Consume transform jobs, write the merged CSV and enqueue a clean job.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			stage := &merge.Stage{
				Engine:     &merge.Engine{Store: store, Log: logging.Component(a.log, "merge")},
				GoldDBPath: a.cfg.Gold.Path,
				GoldTable:  a.cfg.Gold.Table,
			}
			return a.serve(ctx, stage, a.cfg.Rabbit.TransformQueue, a.cfg.Rabbit.CleanQueue)
		},
	}
}

func newCleanerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleaner",
		Short: "Consume clean jobs, clean the merged CSV and load it into gold.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			stage := &clean.Stage{
				Engine: &clean.Engine{Store: store, Log: logging.Component(a.log, "clean")},
				Loader: &gold.Loader{
					Log:       logging.Component(a.log, "gold"),
					BatchSize: a.cfg.Gold.BatchSize,
					Stage:     clean.StageName,
				},
				StoreKind: a.cfg.Gold.Store,
			}
			return a.serve(ctx, stage, a.cfg.Rabbit.CleanQueue, "")
		},
	}
}

func (a *app) defaults() job.Defaults {
	return job.Defaults{
		RawBucket:   a.cfg.Buckets.Raw,
		XformBucket: a.cfg.Buckets.Xform,
		Prefix:      a.cfg.Buckets.Prefix,
		GoldDBPath:  a.cfg.Gold.Path,
		GoldTable:   a.cfg.Gold.Table,
	}
}

func (a *app) queueOptions() queue.Options {
	return queue.Options{
		PortWaitTries:    a.cfg.Startup.PortWaitTries,
		PortWaitDelay:    a.cfg.Startup.PortWaitDelay,
		ConnectTries:     a.cfg.Startup.ConnectTries,
		ConnectBaseDelay: a.cfg.Startup.ConnectBaseDelay,
	}
}

func (a *app) objectStore(ctx context.Context) (objstore.Store, error) {
	return objstore.NewMinIO(ctx, objstore.MinIOConfig{
		Endpoint:  a.cfg.MinIO.Endpoint,
		AccessKey: a.cfg.MinIO.AccessKey,
		SecretKey: a.cfg.MinIO.SecretKey,
		UseSSL:    a.cfg.MinIO.UseSSL,
	}, a.cfg.Startup.ConnectTries, logging.Component(a.log, "objstore"))
}

// serve runs stage against queueName until SIGINT/SIGTERM. A job in
// progress finishes before the process exits.
func (a *app) serve(ctx context.Context, stage runner.Stage, queueName, nextQueue string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := a.log.With().Str("service", stage.Name()).Logger()

	metricsHandler, flush := a.setupMetrics(stage.Name())
	defer flush()
	a.serveHTTP(ctx, stage.Name(), metricsHandler)
	go metrics.RunUptime(ctx, stage.Name(), uptimeInterval)

	qc, err := queue.Connect(ctx, a.cfg.Rabbit.URL, a.queueOptions(), logging.Component(a.log, "queue"))
	if err != nil {
		return err
	}
	defer qc.Close()

	for _, q := range []string{queueName, nextQueue} {
		if q == "" {
			continue
		}
		if err := qc.Declare(q); err != nil {
			return err
		}
	}
	deliveries, err := qc.Consume(ctx, queueName)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Stage:     stage,
		Defaults:  a.defaults(),
		Publisher: qc,
		NextQueue: nextQueue,
		Log:       log.With().Str("queue", queueName).Logger(),
	}
	err = r.Run(ctx, deliveries)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

// setupMetrics installs the configured backend. The returned handler is
// non-nil for the pull-based Prometheus backends.
func (a *app) setupMetrics(service string) (http.Handler, func()) {
	flush := func() {
		if err := metrics.Flush(); err != nil {
			a.log.Warn().Err(err).Msg("metrics: flush")
		}
	}
	switch a.cfg.Metrics.Backend {
	case "prometheus", "pushgateway":
		gw := ""
		if a.cfg.Metrics.Backend == "pushgateway" {
			gw = a.cfg.Metrics.PushgatewayURL
		}
		b, err := prom.NewBackend(service, gw)
		if err != nil {
			a.log.Warn().Err(err).Msg("metrics: prometheus backend unavailable; using nop")
			return nil, func() {}
		}
		metrics.SetBackend(b)
		a.log.Info().Str("backend", a.cfg.Metrics.Backend).Int("port", a.cfg.Metrics.Port).Msg("metrics enabled")
		return b.Handler(), flush
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       a.cfg.Metrics.DogStatsDAddr,
			Namespace:  "crashpipe.",
			GlobalTags: []string{"service:" + service},
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("metrics: datadog backend unavailable; using nop")
			return nil, func() {}
		}
		metrics.SetBackend(b)
		a.log.Info().Str("backend", "datadog").Str("addr", a.cfg.Metrics.DogStatsDAddr).Msg("metrics enabled")
		return nil, flush
	}
	a.log.Info().Msg("metrics disabled")
	return nil, func() {}
}

type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{Status: "running", Service: service})
	}
}

// serveHTTP starts the health and metrics listeners. They stop when ctx is
// done.
func (a *app) serveHTTP(ctx context.Context, service string, metricsHandler http.Handler) {
	listeners := map[int]http.Handler{}
	if a.cfg.HealthPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/health", healthHandler(service))
		listeners[a.cfg.HealthPort] = mux
	}
	if metricsHandler != nil && a.cfg.Metrics.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		listeners[a.cfg.Metrics.Port] = mux
	}
	for port, h := range listeners {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", srv.Addr).Msg("http listener stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.Info().Str("addr", srv.Addr).Msg("http listener started")
	}
}
