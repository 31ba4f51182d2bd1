package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction represents one enriched blockchain transaction.
// This is a domain struct, not a BigQuery row; the cast step maps it
// into the fact_transactions table schema.
type Transaction struct {
	Asset          string    // literal asset label injected at normalization
	TransactionID  string    // from "hash"
	BlockTimestamp time.Time // from "block_timestamp"

	InputValue  decimal.Decimal // major units
	OutputValue decimal.Decimal // major units
	Fee         decimal.Decimal // major units

	BucketTimestamp time.Time  // block_timestamp floored to the bar width
	PartitionMonth  civil.Date // first day of block_timestamp's UTC month

	// Null when no price bar shares the transaction's bucket.
	InputValueUSD  decimal.NullDecimal
	OutputValueUSD decimal.NullDecimal
	FeeUSD         decimal.NullDecimal
}

// Priced reports whether the transaction was matched to a price bar.
func (t Transaction) Priced() bool {
	return t.InputValueUSD.Valid
}
