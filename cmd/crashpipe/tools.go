package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"crashpipe/internal/gold"
	"crashpipe/internal/job"
	"crashpipe/internal/logging"
	"crashpipe/internal/queue"
	"crashpipe/internal/storage"

	"github.com/spf13/cobra"
)

func newTriggerCommand(a *app) *cobra.Command {
	var kind, corrID string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Publish a transform or clean job for a correlation id.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, q, err := a.buildJob(job.Kind(strings.ToLower(kind)), corrID)
			if err != nil {
				return err
			}
			body, err := job.Encode(j)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			qc, err := queue.Connect(ctx, a.cfg.Rabbit.URL, a.queueOptions(), logging.Component(a.log, "queue"))
			if err != nil {
				return err
			}
			defer qc.Close()
			if err := qc.Declare(q); err != nil {
				return err
			}
			if err := qc.Publish(ctx, q, body); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "published %s job to %q\n%s\n", j.Kind, q, body)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(job.KindClean), "Job type: transform or clean.")
	cmd.Flags().StringVar(&corrID, "corr-id", "", "Correlation id of the run.")
	_ = cmd.MarkFlagRequired("corr-id")
	return cmd
}

// buildJob fills a job of kind from configuration and returns it with its
// target queue.
func (a *app) buildJob(kind job.Kind, corrID string) (job.Job, string, error) {
	d := a.defaults()
	switch kind {
	case job.KindTransform:
		return job.NewTransform(job.Transform{
			CorrID:      corrID,
			RawBucket:   d.RawBucket,
			XformBucket: d.XformBucket,
			Prefix:      d.Prefix,
		}), a.cfg.Rabbit.TransformQueue, nil
	case job.KindClean:
		return job.NewClean(job.Clean{
			CorrID:      corrID,
			XformBucket: d.XformBucket,
			Prefix:      d.Prefix,
			GoldDBPath:  d.GoldDBPath,
			GoldTable:   d.GoldTable,
		}), a.cfg.Rabbit.CleanQueue, nil
	}
	return job.Job{}, "", fmt.Errorf("%w: %q", job.ErrUnknownType, kind)
}

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run the gold integrity checks and print the report.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := gold.Verify(cmd.Context(), logging.Component(a.log, "gold"), storage.Config{
				Kind:  a.cfg.Gold.Store,
				DSN:   a.cfg.Gold.Path,
				Table: gold.Table(a.cfg.Gold.Table),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if !rep.Passed {
				return fmt.Errorf("integrity check failed")
			}
			return nil
		},
	}
}
