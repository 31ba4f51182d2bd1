package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// DeletePartitionDateWithClient deletes the rows of one processing date from
// table: partition column = pred.Month AND DATE(date column) = pred.Date.
// It returns the number of rows deleted. Once the job is submitted, a failure
// to observe its result wraps domain.ErrWriteUnconfirmed.
func DeletePartitionDateWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, table domain.Table, pred domain.PartitionPredicate) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE %s = @partition_month
		  AND DATE(%s) = @processing_date
	`, ref.Qualified(table), table.PartitionColumn, table.DateColumn))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "partition_month", Value: pred.Month},
		{Name: "processing_date", Value: pred.Date},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeletePartitionDate %s: run query: %w", table, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeletePartitionDate %s: wait for job %s: %w: %w", table, job.ID(), domain.ErrWriteUnconfirmed, err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("DeletePartitionDate %s: job error: %w", table, err)
	}

	var deleted int64
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		deleted = stats.NumDMLAffectedRows
	}
	return deleted, nil
}
