package main

import (
	"github.com/spf13/cobra"

	"github.com/dvloznov/crypto-etl/internal/domain"
	infraBQ "github.com/dvloznov/crypto-etl/internal/infra/bigquery"
)

func (a *app) inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show per-date row counts of both warehouse tables for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateIdentity(); err != nil {
				return err
			}
			date, err := parseDateFlag(cmd, "date")
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			wh, err := infraBQ.NewWarehouse(ctx, infraBQ.TableRef{ProjectID: a.cfg.ProjectID, DatasetID: a.cfg.Dataset})
			if err != nil {
				return err
			}
			defer wh.Close()

			pred := domain.PredicateFor(date)
			for _, table := range []domain.Table{domain.DimMarketPrice, domain.FactTransactions} {
				n, err := wh.CountRows(ctx, table, pred)
				if err != nil {
					return err
				}
				printf(cmd, "\n=== %s (%s: %d rows) ===\n", table, date, n)

				counts, err := wh.CountRowsByDate(ctx, table, pred.Month)
				if err != nil {
					return err
				}
				for _, c := range counts {
					printf(cmd, "  %s  %d\n", c.Date, c.Rows)
				}
			}
			printf(cmd, "\n")
			return nil
		},
	}
	cmd.Flags().String("date", "", "Date to inspect; its whole month is listed (YYYY-MM-DD)")
	return cmd
}
