package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/crypto-etl/internal/gcs"
	infraBQ "github.com/dvloznov/crypto-etl/internal/infra/bigquery"
	"github.com/dvloznov/crypto-etl/internal/ingest"
	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

func (a *app) loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load one processing date into dim_market_price and fact_transactions",
		Long: `Load replaces every row of the given date in both warehouse tables with
rows computed from the raw exports. Running it again for the same date is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			date, err := a.cfg.ProcessingDate()
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			return a.withRunDeps(ctx, func(src pipeline.IngestionSource, wh pipeline.WarehouseClient) error {
				opts, err := a.cfg.RunOptions(date)
				if err != nil {
					return err
				}
				state, err := pipeline.Run(ctx, opts, src, wh)
				if err != nil {
					return err
				}
				for _, r := range state.Results {
					printf(cmd, "%s %s: deleted %d, appended %d\n", r.Table, r.Date, r.Deleted, r.Appended)
				}
				return nil
			})
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("date", "", "Processing date (YYYY-MM-DD)")
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", pipeline.DefaultWorkers, "Join shards")
	cmd.Flags().Bool("concurrent-load", false, "Load both tables in parallel")
	cmd.Flags().Duration("timeout", 30*time.Minute, "Overall timeout")
}

// withRunDeps opens the storage and warehouse clients for one invocation and
// closes them on every exit path.
func (a *app) withRunDeps(ctx context.Context, fn func(pipeline.IngestionSource, pipeline.WarehouseClient) error) error {
	storage, err := gcs.NewGCSStorageService(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	wh, err := infraBQ.NewWarehouse(ctx, infraBQ.TableRef{ProjectID: a.cfg.ProjectID, DatasetID: a.cfg.Dataset})
	if err != nil {
		return err
	}
	defer func() {
		if err := wh.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close warehouse client")
		}
	}()

	src := ingest.NewParquetSource(storage, a.cfg.Bucket, a.cfg.Source.RetryMaxElapsed)
	return fn(src, wh)
}

func parseDateFlag(cmd *cobra.Command, name string) (civil.Date, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return civil.Date{}, fmt.Errorf("--%s is required", name)
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("--%s %q is not YYYY-MM-DD: %w", name, s, err)
	}
	return d, nil
}
