package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// PriceBar is one fixed-interval OHLCV observation for one asset.
type PriceBar struct {
	Asset     string
	OpenTime  time.Time // aligned to the bar width
	CloseTime time.Time // zero when the source has no close time

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal

	TradeCount     int64
	PartitionMonth civil.Date
}

// MonthOf returns the first day of t's UTC month.
func MonthOf(t time.Time) civil.Date {
	d := civil.DateOf(t.UTC())
	d.Day = 1
	return d
}

// FirstOfMonth returns the first day of d's month.
func FirstOfMonth(d civil.Date) civil.Date {
	d.Day = 1
	return d
}
