package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// MarketPriceRow is one row of dim_market_price.
type MarketPriceRow struct {
	Cryptocurrency string                 `bigquery:"cryptocurrency" json:"cryptocurrency"`     // REQUIRED
	OpenTime       time.Time              `bigquery:"open_time" json:"open_time"`               // REQUIRED
	CloseTime      bigquery.NullTimestamp `bigquery:"close_time" json:"close_time"`             // NULLABLE
	OpenPrice      decimal.Decimal        `bigquery:"open_price" json:"open_price"`             // BIGNUMERIC
	HighPrice      decimal.Decimal        `bigquery:"high_price" json:"high_price"`             // BIGNUMERIC
	LowPrice       decimal.Decimal        `bigquery:"low_price" json:"low_price"`               // BIGNUMERIC
	ClosePrice     decimal.Decimal        `bigquery:"close_price" json:"close_price"`           // BIGNUMERIC
	Volume         decimal.Decimal        `bigquery:"volume" json:"volume"`                     // BIGNUMERIC
	NumberOfTrades int64                  `bigquery:"number_of_trades" json:"number_of_trades"` // INTEGER
	TimestampMonth civil.Date             `bigquery:"timestamp_month" json:"timestamp_month"`   // partition column
}

// RowDate implements domain.Row.
func (r MarketPriceRow) RowDate() civil.Date {
	return civil.DateOf(r.OpenTime.UTC())
}

// RowMonth implements domain.Row.
func (r MarketPriceRow) RowMonth() civil.Date {
	return r.TimestampMonth
}
