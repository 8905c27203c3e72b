package main

import (
	"fmt"
	"io"

	"crashpipe/internal/config"
	"crashpipe/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the resolved configuration into every subcommand.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

// flagKeys binds persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"log-format":      "log_format",
	"gold-store":      "gold_store",
	"gold-db-path":    "gold_db_path",
	"gold-table":      "gold_table",
	"metrics-backend": "metrics_backend",
	"rabbitmq-url":    "rabbitmq_url",
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	rc := &cobra.Command{
		Use:           "crashpipe",
		Short:         "Crash data pipeline: merge, clean and load into the gold store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	pf := rc.PersistentFlags()
	pf.StringP("config", "c", "", "Configuration file to read from.")
	pf.String("log-level", "", "Log level (debug, info, warn, error).")
	pf.String("log-format", "", "Log format (json or console).")
	pf.String("gold-store", "", "Gold backend (sqlite, duckdb, postgres).")
	pf.String("gold-db-path", "", "Gold database path or DSN.")
	pf.String("gold-table", "", "Gold table name.")
	pf.String("metrics-backend", "", "Metrics backend (prometheus, pushgateway, datadog, none).")
	pf.String("rabbitmq-url", "", "AMQP broker URL.")
	for flag, key := range flagKeys {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	rc.AddCommand(newTransformerCommand(a))
	rc.AddCommand(newCleanerCommand(a))
	rc.AddCommand(newTriggerCommand(a))
	rc.AddCommand(newVerifyCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// load resolves configuration, builds the root logger and rejects invalid
// settings before any command runs.
func (a *app) load(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("problem getting config flag: %w", err)
	}
	cfg, err := config.Load(a.v, path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		ev := a.log.Warn()
		if iss.Severity == config.SeverityError {
			ev = a.log.Error()
		}
		ev.Str("key", iss.Path).Msg(iss.Message)
	}
	if errs := config.Errors(issues); len(errs) > 0 {
		return fmt.Errorf("configuration is invalid: %d error(s), first: %w", len(errs), errs[0])
	}
	return nil
}
