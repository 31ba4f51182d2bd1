package bigquery

import (
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

var marketPriceSchema = bigquery.Schema{
	{Name: "cryptocurrency", Type: bigquery.StringFieldType, Required: true},
	{Name: "open_time", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "close_time", Type: bigquery.TimestampFieldType},
	{Name: "open_price", Type: bigquery.BigNumericFieldType},
	{Name: "high_price", Type: bigquery.BigNumericFieldType},
	{Name: "low_price", Type: bigquery.BigNumericFieldType},
	{Name: "close_price", Type: bigquery.BigNumericFieldType},
	{Name: "volume", Type: bigquery.BigNumericFieldType},
	{Name: "number_of_trades", Type: bigquery.IntegerFieldType},
	{Name: "timestamp_month", Type: bigquery.DateFieldType, Required: true},
}

var transactionSchema = bigquery.Schema{
	{Name: "cryptocurrency", Type: bigquery.StringFieldType, Required: true},
	{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "block_timestamp", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "bucket_timestamp", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "block_timestamp_month", Type: bigquery.DateFieldType, Required: true},
	{Name: "input_value", Type: bigquery.NumericFieldType},
	{Name: "output_value", Type: bigquery.NumericFieldType},
	{Name: "fee", Type: bigquery.NumericFieldType},
	{Name: "input_value_usd", Type: bigquery.BigNumericFieldType},
	{Name: "output_value_usd", Type: bigquery.BigNumericFieldType},
	{Name: "fee_usd", Type: bigquery.BigNumericFieldType},
}

// SchemaFor returns the load schema of a warehouse table.
func SchemaFor(table domain.Table) (bigquery.Schema, error) {
	switch table.Name {
	case domain.DimMarketPrice.Name:
		return marketPriceSchema, nil
	case domain.FactTransactions.Name:
		return transactionSchema, nil
	default:
		return nil, fmt.Errorf("SchemaFor: unknown table %q", table.Name)
	}
}
