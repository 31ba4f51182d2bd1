package bigquery

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionRow is one row of fact_transactions.
type TransactionRow struct {
	Cryptocurrency string `bigquery:"cryptocurrency" json:"cryptocurrency"` // REQUIRED
	TransactionID  string `bigquery:"transaction_id" json:"transaction_id"` // REQUIRED

	BlockTimestamp      time.Time  `bigquery:"block_timestamp" json:"block_timestamp"`             // REQUIRED
	BucketTimestamp     time.Time  `bigquery:"bucket_timestamp" json:"bucket_timestamp"`           // REQUIRED
	BlockTimestampMonth civil.Date `bigquery:"block_timestamp_month" json:"block_timestamp_month"` // partition column

	InputValue  decimal.Decimal `bigquery:"input_value" json:"input_value"`   // NUMERIC
	OutputValue decimal.Decimal `bigquery:"output_value" json:"output_value"` // NUMERIC
	Fee         decimal.Decimal `bigquery:"fee" json:"fee"`                   // NUMERIC

	InputValueUSD  decimal.NullDecimal `bigquery:"input_value_usd" json:"input_value_usd"`   // NULLABLE BIGNUMERIC
	OutputValueUSD decimal.NullDecimal `bigquery:"output_value_usd" json:"output_value_usd"` // NULLABLE BIGNUMERIC
	FeeUSD         decimal.NullDecimal `bigquery:"fee_usd" json:"fee_usd"`                   // NULLABLE BIGNUMERIC
}

// RowDate implements domain.Row.
func (r TransactionRow) RowDate() civil.Date {
	return civil.DateOf(r.BlockTimestamp.UTC())
}

// RowMonth implements domain.Row.
func (r TransactionRow) RowMonth() civil.Date {
	return r.BlockTimestampMonth
}
