package pipeline

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// RawBatch is everything the ingestion source returns for one date.
type RawBatch struct {
	PriceBars    []RawRow
	Transactions []RawRow
}

// IngestionSource yields the raw rows of one asset and date.
// This interface enables mocking and testing of the ingestion layer.
type IngestionSource interface {
	Fetch(ctx context.Context, asset string, date civil.Date, width BarWidth) (RawBatch, error)
}

// WarehouseClient is the storage collaborator the partition loader writes through.
type WarehouseClient interface {
	// DeleteRows removes rows matching pred and returns how many were removed.
	DeleteRows(ctx context.Context, table domain.Table, pred domain.PartitionPredicate) (int64, error)

	// AppendRows appends rows to table.
	AppendRows(ctx context.Context, table domain.Table, rows []domain.Row) error
}
