package ingest

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// PricesObject is the object path of the price bar file for one date:
// <asset>_prices/<date>/<asset>_prices_<date>_<width>.parquet
func PricesObject(asset string, date civil.Date, width string) string {
	a := strings.ToLower(asset)
	return fmt.Sprintf("%s_prices/%s/%s_prices_%s_%s.parquet", a, date, a, date, width)
}

// TransactionsPrefix is the object prefix shared by the transaction files of
// one date: <asset>_transactions/<date>/<asset>_transactions_<date>
func TransactionsPrefix(asset string, date civil.Date) string {
	a := strings.ToLower(asset)
	return fmt.Sprintf("%s_transactions/%s/%s_transactions_%s", a, date, a, date)
}
