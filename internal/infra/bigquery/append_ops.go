package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// AppendRowsWithClient appends rows to table with a newline-delimited JSON
// load job. Load jobs bypass the streaming buffer, so a later DELETE for the
// same date is never blocked by rows that are still buffered.
func AppendRowsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, table domain.Table, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}

	schema, err := SchemaFor(table)
	if err != nil {
		return fmt.Errorf("AppendRows %s: %w", table, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("AppendRows %s: encoding row %d: %w", table, i, err)
		}
	}

	src := bigquery.NewReaderSource(&buf)
	src.SourceFormat = bigquery.JSON
	src.Schema = schema

	loader := client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(table.Name).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("AppendRows %s: run load job: %w", table, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("AppendRows %s: wait for job: %w", table, err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("AppendRows %s: job error: %w", table, err)
	}

	return nil
}
