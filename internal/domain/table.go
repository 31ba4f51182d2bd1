package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// Table identifies a month-partitioned warehouse table and the columns
// the partition loader filters on.
type Table struct {
	Name            string
	PartitionColumn string // DATE column holding the first day of the month
	DateColumn      string // TIMESTAMP column whose DATE() is the processing date
}

var (
	// DimMarketPrice holds one row per price bar.
	DimMarketPrice = Table{
		Name:            "dim_market_price",
		PartitionColumn: "timestamp_month",
		DateColumn:      "open_time",
	}

	// FactTransactions holds one row per enriched transaction.
	FactTransactions = Table{
		Name:            "fact_transactions",
		PartitionColumn: "block_timestamp_month",
		DateColumn:      "block_timestamp",
	}
)

func (t Table) String() string {
	return t.Name
}

// PartitionPredicate selects the rows of one processing date:
// partition column = Month AND DATE(date column) = Date.
type PartitionPredicate struct {
	Month civil.Date
	Date  civil.Date
}

// PredicateFor builds the predicate for processing date d.
func PredicateFor(d civil.Date) PartitionPredicate {
	return PartitionPredicate{Month: FirstOfMonth(d), Date: d}
}

// Matches reports whether a row dated d inside partition month m is selected.
func (p PartitionPredicate) Matches(m, d civil.Date) bool {
	return m == p.Month && d == p.Date
}

func (p PartitionPredicate) String() string {
	return fmt.Sprintf("month=%s date=%s", p.Month, p.Date)
}

// Row is one canonical output row ready for the warehouse.
type Row interface {
	// RowDate is the UTC date of the row's date column.
	RowDate() civil.Date
	// RowMonth is the row's partition month.
	RowMonth() civil.Date
}
