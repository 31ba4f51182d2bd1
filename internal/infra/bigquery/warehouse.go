package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/option"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// TableRef locates the dataset holding the warehouse tables.
type TableRef struct {
	ProjectID string
	DatasetID string
}

// Qualified returns the backquoted `project.dataset.table` name.
func (r TableRef) Qualified(table domain.Table) string {
	return "`" + r.ProjectID + "." + r.DatasetID + "." + table.Name + "`"
}

// Warehouse is the BigQuery implementation of the warehouse client. It holds
// one client for the whole run so that a table's delete and append go
// through the same handle, one after the other.
type Warehouse struct {
	client *bigquery.Client
	ref    TableRef
}

// NewWarehouse opens a BigQuery client scoped to one run. Callers must Close it.
func NewWarehouse(ctx context.Context, ref TableRef, opts ...option.ClientOption) (*Warehouse, error) {
	if ref.ProjectID == "" || ref.DatasetID == "" {
		return nil, fmt.Errorf("NewWarehouse: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, ref.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	return &Warehouse{client: client, ref: ref}, nil
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// DeleteRows delegates to DeletePartitionDateWithClient with the shared client.
func (w *Warehouse) DeleteRows(ctx context.Context, table domain.Table, pred domain.PartitionPredicate) (int64, error) {
	return DeletePartitionDateWithClient(ctx, w.client, w.ref, table, pred)
}

// AppendRows delegates to AppendRowsWithClient with the shared client.
func (w *Warehouse) AppendRows(ctx context.Context, table domain.Table, rows []domain.Row) error {
	return AppendRowsWithClient(ctx, w.client, w.ref, table, rows)
}

// CountRows delegates to CountRowsWithClient with the shared client.
func (w *Warehouse) CountRows(ctx context.Context, table domain.Table, pred domain.PartitionPredicate) (int64, error) {
	return CountRowsWithClient(ctx, w.client, w.ref, table, pred)
}

// CountRowsByDate delegates to CountRowsByDateWithClient with the shared client.
func (w *Warehouse) CountRowsByDate(ctx context.Context, table domain.Table, month civil.Date) ([]DateCount, error) {
	return CountRowsByDateWithClient(ctx, w.client, w.ref, table, month)
}
