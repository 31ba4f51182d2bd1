package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/domain"
	"github.com/dvloznov/crypto-etl/internal/logger"
)

// LoadState tracks a table through the two-phase load.
type LoadState int

const (
	// LoadPending: nothing has been written.
	LoadPending LoadState = iota
	// LoadDeleted: the date's old rows are gone and the new rows are not yet
	// appended. The table is not query-safe for the date in this state.
	LoadDeleted
	// LoadComplete: the new rows replaced the old ones.
	LoadComplete
)

func (s LoadState) String() string {
	switch s {
	case LoadPending:
		return "pending"
	case LoadDeleted:
		return "deleted"
	case LoadComplete:
		return "complete"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// LoadResult reports what one Load call did to its table.
type LoadResult struct {
	Table    domain.Table
	Date     civil.Date
	State    LoadState
	Deleted  int64
	Appended int
}

// PartitionLoader replaces one processing date of a table: delete the date,
// then append the new rows.
type PartitionLoader struct {
	client WarehouseClient
}

// NewPartitionLoader creates a loader writing through client.
func NewPartitionLoader(client WarehouseClient) *PartitionLoader {
	return &PartitionLoader{client: client}
}

// Load runs delete-then-append for date on table. Every row must belong to
// date; otherwise nothing is touched. If the append fails, ctx is cancelled
// after the delete, or the delete's outcome is unknown, the result is in
// LoadDeleted and the error is a *domain.PartialLoadError.
func (l *PartitionLoader) Load(ctx context.Context, table domain.Table, date civil.Date, rows []domain.Row) (LoadResult, error) {
	log := logger.FromContext(ctx).With().Str("table", table.Name).Str("date", date.String()).Logger()
	res := LoadResult{Table: table, Date: date, State: LoadPending}
	pred := domain.PredicateFor(date)

	for i, r := range rows {
		if !pred.Matches(r.RowMonth(), r.RowDate()) {
			return res, fmt.Errorf("Load %s: row %d dated %s in month %s: %w",
				table, i, r.RowDate(), r.RowMonth(), domain.ErrRowOutsidePartition)
		}
	}

	partial := func(deleted int64, err error) error {
		return &domain.PartialLoadError{Table: table.Name, Date: date, Deleted: deleted, Err: err}
	}

	deleted, err := l.client.DeleteRows(ctx, table, pred)
	if err != nil {
		err = fmt.Errorf("Load %s: delete %s: %w: %w", table, pred, domain.ErrWrite, err)
		if deleteMayHaveCommitted(ctx, err) {
			// The rows for date may be gone; nothing will be appended.
			res.State = LoadDeleted
			log.Error().Err(err).Msg("Delete outcome unknown, treating date as deleted")
			return res, partial(0, err)
		}
		return res, err
	}
	res.State = LoadDeleted
	res.Deleted = deleted
	log.Info().Int64("deleted", deleted).Msg("Deleted existing rows for date")

	if err := ctx.Err(); err != nil {
		return res, partial(deleted, fmt.Errorf("Load %s: cancelled before append: %w: %w", table, domain.ErrWrite, err))
	}

	if err := l.client.AppendRows(ctx, table, rows); err != nil {
		return res, partial(deleted, fmt.Errorf("Load %s: append %d rows: %w: %w", table, len(rows), domain.ErrWrite, err))
	}
	res.State = LoadComplete
	res.Appended = len(rows)
	log.Info().Int("appended", len(rows)).Msg("Appended rows for date")

	return res, nil
}

// deleteMayHaveCommitted reports whether a failed delete could still have
// removed rows: the job outcome was not observed or the run was cancelled
// while it was in flight.
func deleteMayHaveCommitted(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrWriteUnconfirmed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
