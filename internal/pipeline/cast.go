package pipeline

import (
	"time"

	bigquerylib "cloud.google.com/go/bigquery"

	"github.com/dvloznov/crypto-etl/internal/domain"
	infra "github.com/dvloznov/crypto-etl/internal/infra/bigquery"
)

// warehouseTime is the timestamp precision the warehouse stores.
func warehouseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CastPriceBars maps price bars onto dim_market_price rows.
func CastPriceBars(bars []domain.PriceBar) []domain.Row {
	rows := make([]domain.Row, 0, len(bars))
	for _, b := range bars {
		row := infra.MarketPriceRow{
			Cryptocurrency: b.Asset,
			OpenTime:       warehouseTime(b.OpenTime),
			OpenPrice:      b.Open,
			HighPrice:      b.High,
			LowPrice:       b.Low,
			ClosePrice:     b.Close,
			Volume:         b.Volume,
			NumberOfTrades: b.TradeCount,
			TimestampMonth: b.PartitionMonth,
		}
		if !b.CloseTime.IsZero() {
			row.CloseTime = bigquerylib.NullTimestamp{Timestamp: warehouseTime(b.CloseTime), Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// CastTransactions maps enriched transactions onto fact_transactions rows.
func CastTransactions(txs []domain.Transaction) []domain.Row {
	rows := make([]domain.Row, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, infra.TransactionRow{
			Cryptocurrency:      t.Asset,
			TransactionID:       t.TransactionID,
			BlockTimestamp:      warehouseTime(t.BlockTimestamp),
			BucketTimestamp:     warehouseTime(t.BucketTimestamp),
			BlockTimestampMonth: t.PartitionMonth,
			InputValue:          t.InputValue,
			OutputValue:         t.OutputValue,
			Fee:                 t.Fee,
			InputValueUSD:       t.InputValueUSD,
			OutputValueUSD:      t.OutputValueUSD,
			FeeUSD:              t.FeeUSD,
		})
	}
	return rows
}
