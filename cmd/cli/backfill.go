package main

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/crypto-etl/internal/backfill"
	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

func (a *app) backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Load every date in a range, each as an independent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDateFlag(cmd, "from")
			if err != nil {
				return err
			}
			to, err := parseDateFlag(cmd, "to")
			if err != nil {
				return err
			}
			dates, err := backfill.Dates(from, to)
			if err != nil {
				return err
			}

			// Validate against the first date; every date shares the rest.
			a.cfg.Date = from.String()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			parallel, _ := cmd.Flags().GetInt("parallel")
			retries, _ := cmd.Flags().GetInt("retries")

			ctx, cancel := a.context(cmd)
			defer cancel()

			return a.withRunDeps(ctx, func(src pipeline.IngestionSource, wh pipeline.WarehouseClient) error {
				run := func(ctx context.Context, date civil.Date) error {
					opts, err := a.cfg.RunOptions(date)
					if err != nil {
						return err
					}
					_, err = pipeline.Run(ctx, opts, src, wh)
					return err
				}

				summary, err := backfill.Run(ctx, dates, backfill.Options{
					Asset:   a.cfg.Asset,
					Workers: parallel,
					Retries: retries,
				}, run)
				for _, j := range summary.Jobs {
					printf(cmd, "%s %-9s attempts=%d", j.Date, j.Status, j.RetryCount+1)
					if len(j.PartialTables) > 0 {
						printf(cmd, " partial=%v", j.PartialTables)
					}
					printf(cmd, "\n")
				}
				return err
			})
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("from", "", "First processing date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last processing date, inclusive (YYYY-MM-DD)")
	cmd.Flags().Int("parallel", 1, "Dates loaded concurrently")
	cmd.Flags().Int("retries", 0, "Re-runs of a failed date")
	return cmd
}
