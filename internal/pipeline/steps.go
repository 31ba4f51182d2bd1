package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/crypto-etl/internal/domain"
	"github.com/dvloznov/crypto-etl/internal/logger"
)

// RunState is how far a run has progressed.
type RunState int

const (
	RunStarted RunState = iota
	Sourced
	Normalized
	ConvertedAndBucketed
	JoinedAndValued
	Cast
	Loaded
)

func (s RunState) String() string {
	switch s {
	case RunStarted:
		return "started"
	case Sourced:
		return "sourced"
	case Normalized:
		return "normalized"
	case ConvertedAndBucketed:
		return "converted_and_bucketed"
	case JoinedAndValued:
		return "joined_and_valued"
	case Cast:
		return "cast"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// PipelineStep represents a single step in the load pipeline.
type PipelineStep interface {
	Stage() domain.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Asset string
	Date  civil.Date
	Width BarWidth
	RunID string

	Raw          RawBatch
	PriceRows    []CanonicalRow
	TxRows       []CanonicalRow
	Bars         []domain.PriceBar
	SourceTxs    []SourceTransaction
	Transactions []domain.Transaction

	BarRows  []domain.Row
	FactRows []domain.Row

	Results []LoadResult
	State   RunState
}

// Step 1: SourceStep fetches the raw rows for the date.
type SourceStep struct {
	Source IngestionSource
}

func (s *SourceStep) Stage() domain.Stage { return domain.StageSource }

func (s *SourceStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Source.Fetch(ctx, state.Asset, state.Date, state.Width)
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w: %w", state.Asset, state.Date, domain.ErrSourceUnavailable, err)
	}
	state.Raw = raw
	state.State = Sourced
	logger.FromContext(ctx).Info().
		Int("price_rows", len(raw.PriceBars)).
		Int("transaction_rows", len(raw.Transactions)).
		Msg("Fetched source rows")
	return nil
}

// Step 2: NormalizeStep renames columns and decodes typed records.
type NormalizeStep struct{}

func (s *NormalizeStep) Stage() domain.Stage { return domain.StageNormalize }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.PriceRows = make([]CanonicalRow, 0, len(state.Raw.PriceBars))
	state.Bars = make([]domain.PriceBar, 0, len(state.Raw.PriceBars))
	for i, raw := range state.Raw.PriceBars {
		row, err := Normalize(SourcePriceBars, raw, state.Asset)
		if err != nil {
			return fmt.Errorf("price row %d: %w", i, err)
		}
		bar, err := DecodePriceBar(row, state.Width.Duration)
		if err != nil {
			return fmt.Errorf("price row %d: %w", i, err)
		}
		state.PriceRows = append(state.PriceRows, row)
		state.Bars = append(state.Bars, bar)
	}

	state.TxRows = make([]CanonicalRow, 0, len(state.Raw.Transactions))
	state.SourceTxs = make([]SourceTransaction, 0, len(state.Raw.Transactions))
	for i, raw := range state.Raw.Transactions {
		row, err := Normalize(SourceTransactions, raw, state.Asset)
		if err != nil {
			return fmt.Errorf("transaction row %d: %w", i, err)
		}
		tx, err := DecodeSourceTransaction(row)
		if err != nil {
			return fmt.Errorf("transaction row %d: %w", i, err)
		}
		state.TxRows = append(state.TxRows, row)
		state.SourceTxs = append(state.SourceTxs, tx)
	}
	state.State = Normalized
	return nil
}

// Step 3: ConvertStep rescales values to major units and buckets block timestamps.
type ConvertStep struct{}

func (s *ConvertStep) Stage() domain.Stage { return domain.StageConvert }

func (s *ConvertStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Transactions = make([]domain.Transaction, 0, len(state.SourceTxs))
	for _, src := range state.SourceTxs {
		tx, err := Convert(src, state.Width)
		if err != nil {
			return err
		}
		state.Transactions = append(state.Transactions, tx)
	}
	state.State = ConvertedAndBucketed
	return nil
}

// Step 4: JoinStep attaches each transaction's bar and computes USD values.
type JoinStep struct {
	// Workers is the number of join shards; 1 or less joins serially.
	Workers int
}

func (s *JoinStep) Stage() domain.Stage { return domain.StageJoin }

func (s *JoinStep) Execute(ctx context.Context, state *PipelineState) error {
	joined, err := JoinSharded(ctx, state.Transactions, state.Bars, s.Workers)
	if err != nil {
		return err
	}

	matched := 0
	valued := make([]domain.Transaction, 0, len(joined))
	for _, j := range joined {
		tx, err := Value(j)
		if err != nil {
			return err
		}
		if tx.Priced() {
			matched++
		}
		valued = append(valued, tx)
	}
	state.Transactions = valued
	state.State = JoinedAndValued

	logger.FromContext(ctx).Info().
		Int("transactions", len(valued)).
		Int("matched", matched).
		Int("unmatched", len(valued)-matched).
		Msg("Joined transactions to price bars")
	return nil
}

// Step 5: CastStep maps records onto warehouse rows.
type CastStep struct{}

func (s *CastStep) Stage() domain.Stage { return domain.StageCast }

func (s *CastStep) Execute(ctx context.Context, state *PipelineState) error {
	state.BarRows = CastPriceBars(state.Bars)
	state.FactRows = CastTransactions(state.Transactions)
	state.State = Cast
	return nil
}

// Step 6: LoadStep replaces the date in both tables. Sequentially the fact
// table loads first and a failure stops the run before the next table is
// touched. With Concurrent set both tables are already in flight, so each
// finishes and every partial load is reported.
type LoadStep struct {
	Loader     *PartitionLoader
	Concurrent bool
}

func (s *LoadStep) Stage() domain.Stage { return domain.StageLoad }

func (s *LoadStep) Execute(ctx context.Context, state *PipelineState) error {
	jobs := []struct {
		table domain.Table
		rows  []domain.Row
	}{
		{domain.FactTransactions, state.FactRows},
		{domain.DimMarketPrice, state.BarRows},
	}

	results := make([]LoadResult, len(jobs))
	errs := make([]error, len(jobs))

	if s.Concurrent {
		// Plain errgroup: one table failing must not cancel the other's load.
		var g errgroup.Group
		for i, j := range jobs {
			g.Go(func() error {
				results[i], errs[i] = s.Loader.Load(ctx, j.table, state.Date, j.rows)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, j := range jobs {
			results[i], errs[i] = s.Loader.Load(ctx, j.table, state.Date, j.rows)
			if errs[i] != nil {
				break
			}
		}
	}
	state.Results = state.Results[:0]
	for _, r := range results {
		// Tables skipped after a sequential failure have no result.
		if r.Table.Name != "" {
			state.Results = append(state.Results, r)
		}
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return &domain.RunError{Date: state.Date, Errs: failed}
	}
	state.State = Loaded
	return nil
}
