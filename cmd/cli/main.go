package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/crypto-etl/internal/config"
	"github.com/dvloznov/crypto-etl/internal/domain"
	"github.com/dvloznov/crypto-etl/internal/logger"
	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

// app carries the resolved configuration and logger to every command.
type app struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
	logCloser  io.Closer
}

func main() {
	a := &app{log: logger.New()}
	root := a.rootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	if err != nil {
		a.log.Error().Err(err).Msg(domain.Describe(err))
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cli",
		Short:         "Crypto ETL: load price bars and transactions into the warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to YAML config file")
	f.String("project", "", "Google Cloud project ID")
	f.String("dataset", "", "BigQuery dataset")
	f.String("bucket", "", "GCS bucket holding the raw exports")
	f.String("asset", pipeline.DefaultAsset, "Asset label")
	f.String("frequency", pipeline.DefaultBarWidth.Label, "Bar width: 15m, 1h, 4h or 1d")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.String("log-format", "", "Log format (console or json)")
	f.String("log-file", "", "Also write JSON logs to this rotating file")

	root.AddCommand(a.loadCmd(), a.backfillCmd(), a.uploadCmd(), a.inspectCmd())
	return root
}

// setup resolves config from file, environment and flags, in that order, and
// builds the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("project", &cfg.ProjectID)
	str("dataset", &cfg.Dataset)
	str("bucket", &cfg.Bucket)
	str("asset", &cfg.Asset)
	str("frequency", &cfg.Frequency)
	str("date", &cfg.Date)
	str("log-level", &cfg.Logging.Level)
	str("log-format", &cfg.Logging.Format)
	str("log-file", &cfg.Logging.File)
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Lookup("concurrent-load") != nil && flags.Changed("concurrent-load") {
		cfg.ConcurrentLoad, _ = flags.GetBool("concurrent-load")
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}

	log, closer, err := logger.Configure(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log.With().Str("command", cmd.Name()).Logger()
	a.logCloser = closer
	return nil
}

// context returns the command context bounded by the configured timeout and
// carrying the logger.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := logger.WithContext(cmd.Context(), a.log)
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
