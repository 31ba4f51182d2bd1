package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// DateCount is the number of rows loaded for one processing date.
type DateCount struct {
	Date civil.Date `bigquery:"load_date"`
	Rows int64      `bigquery:"row_count"`
}

// CountRowsWithClient counts the rows a DeletePartitionDate with the same
// predicate would remove.
func CountRowsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, table domain.Table, pred domain.PartitionPredicate) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS row_count
		FROM %s
		WHERE %s = @partition_month
		  AND DATE(%s) = @processing_date
	`, ref.Qualified(table), table.PartitionColumn, table.DateColumn))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "partition_month", Value: pred.Month},
		{Name: "processing_date", Value: pred.Date},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountRows %s: query read: %w", table, err)
	}

	var row struct {
		Count int64 `bigquery:"row_count"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountRows %s: iter next: %w", table, err)
	}
	return row.Count, nil
}

// CountRowsByDateWithClient returns per-date row counts for one partition month.
func CountRowsByDateWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, table domain.Table, month civil.Date) ([]DateCount, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT DATE(%s) AS load_date, COUNT(*) AS row_count
		FROM %s
		WHERE %s = @partition_month
		GROUP BY load_date
		ORDER BY load_date
	`, table.DateColumn, ref.Qualified(table), table.PartitionColumn))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "partition_month", Value: month},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("CountRowsByDate %s: query read: %w", table, err)
	}

	var counts []DateCount
	for {
		var c DateCount
		err := it.Next(&c)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CountRowsByDate %s: iter next: %w", table, err)
		}
		counts = append(counts, c)
	}

	return counts, nil
}
