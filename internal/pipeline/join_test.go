package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

func bar(asset string, open time.Time, close string) domain.PriceBar {
	return domain.PriceBar{
		Asset:          asset,
		OpenTime:       open,
		Close:          decimal.RequireFromString(close),
		PartitionMonth: domain.MonthOf(open),
	}
}

func convertedTx(t *testing.T, id string, ts time.Time, inputMinor int64) domain.Transaction {
	t.Helper()
	tx, err := Convert(SourceTransaction{
		Asset:            "BTC",
		TransactionID:    id,
		BlockTimestamp:   ts,
		InputValueMinor:  decimal.NewFromInt(inputMinor),
		OutputValueMinor: decimal.NewFromInt(inputMinor),
		FeeMinor:         decimal.NewFromInt(10_000),
	}, DefaultBarWidth)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return tx
}

func TestJoinAndValue_MatchedBar(t *testing.T) {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.PriceBar{bar("BTC", open, "42000.00")}
	txs := []domain.Transaction{convertedTx(t, "t1", time.Date(2024, 1, 1, 0, 7, 0, 0, time.UTC), 100_000_000)}

	joined, err := Join(txs, bars)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joined) != 1 || joined[0].Bar == nil {
		t.Fatalf("expected one matched transaction, got %+v", joined)
	}

	tx, err := Value(joined[0])
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if !tx.BucketTimestamp.Equal(open) {
		t.Errorf("bucket = %v, want %v", tx.BucketTimestamp, open)
	}
	if !tx.InputValue.Equal(decimal.NewFromInt(1)) {
		t.Errorf("input_value = %s, want 1", tx.InputValue)
	}
	if !tx.InputValueUSD.Valid || !tx.InputValueUSD.Decimal.Equal(decimal.RequireFromString("42000")) {
		t.Errorf("input_value_usd = %v, want 42000", tx.InputValueUSD)
	}
	if !tx.FeeUSD.Valid || !tx.FeeUSD.Decimal.Equal(decimal.RequireFromString("4.2")) {
		t.Errorf("fee_usd = %v, want 4.2", tx.FeeUSD)
	}
}

func TestJoinAndValue_UnmatchedIsNull(t *testing.T) {
	bars := []domain.PriceBar{bar("BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "42000")}
	txs := []domain.Transaction{
		convertedTx(t, "no-bar", time.Date(2024, 1, 1, 3, 20, 0, 0, time.UTC), 100_000_000),
	}

	joined, err := Join(txs, bars)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joined) != 1 {
		t.Fatalf("unmatched transaction was dropped: %d rows", len(joined))
	}
	tx, err := Value(joined[0])
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if tx.InputValueUSD.Valid || tx.OutputValueUSD.Valid || tx.FeeUSD.Valid {
		t.Errorf("USD fields should all be null: %v %v %v", tx.InputValueUSD, tx.OutputValueUSD, tx.FeeUSD)
	}
	if tx.Priced() {
		t.Error("Priced() = true for unmatched transaction")
	}
}

// The join matches on the exact bucket only. A transaction whose bucket has
// no bar stays unpriced even when an earlier bar exists.
func TestJoin_ExactBucketOnlyNoEarlierFallback(t *testing.T) {
	bars := []domain.PriceBar{bar("BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "42000")}
	txs := []domain.Transaction{convertedTx(t, "t1", time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC), 1)}

	joined, err := Join(txs, bars)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined[0].Bar != nil {
		t.Fatalf("transaction in bucket 00:15 matched bar %v; expected no match", joined[0].Bar.OpenTime)
	}
}

func TestJoin_AssetMustMatch(t *testing.T) {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.PriceBar{bar("ETH", open, "2000")}
	txs := []domain.Transaction{convertedTx(t, "t1", open.Add(time.Minute), 1)}

	joined, err := Join(txs, bars)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined[0].Bar != nil {
		t.Error("BTC transaction matched an ETH bar")
	}
}

func TestJoin_DuplicatePriceBar(t *testing.T) {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.PriceBar{bar("BTC", open, "1"), bar("BTC", open, "2")}

	_, err := Join(nil, bars)
	if !errors.Is(err, domain.ErrDuplicatePriceBar) {
		t.Fatalf("err = %v, want ErrDuplicatePriceBar", err)
	}
	_, err = JoinSharded(context.Background(), nil, bars, 4)
	if !errors.Is(err, domain.ErrDuplicatePriceBar) {
		t.Fatalf("sharded err = %v, want ErrDuplicatePriceBar", err)
	}
}

func TestJoinSharded_MatchesSerialJoin(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	var bars []domain.PriceBar
	for i := 0; i < 96; i += 2 { // every other bar is missing
		bars = append(bars, bar("BTC", day.Add(time.Duration(i)*15*time.Minute), fmt.Sprintf("%d", 60000+i)))
	}
	var txs []domain.Transaction
	for i := 0; i < 1000; i++ {
		txs = append(txs, convertedTx(t, fmt.Sprintf("t%d", i), day.Add(time.Duration(i)*86*time.Second), int64(i+1)))
	}

	serial, err := Join(txs, bars)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	sharded, err := JoinSharded(context.Background(), txs, bars, 8)
	if err != nil {
		t.Fatalf("JoinSharded: %v", err)
	}
	if len(sharded) != len(serial) {
		t.Fatalf("len = %d, want %d", len(sharded), len(serial))
	}
	for i := range serial {
		if sharded[i].Transaction.TransactionID != serial[i].Transaction.TransactionID {
			t.Fatalf("row %d out of order", i)
		}
		if (sharded[i].Bar == nil) != (serial[i].Bar == nil) {
			t.Fatalf("row %d match differs", i)
		}
		if b := sharded[i].Bar; b != nil && !b.OpenTime.Equal(sharded[i].Transaction.BucketTimestamp) {
			t.Fatalf("row %d matched bar %v for bucket %v", i, b.OpenTime, sharded[i].Transaction.BucketTimestamp)
		}
	}
}

func TestJoinSharded_Cancelled(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 100; i++ {
		txs = append(txs, convertedTx(t, fmt.Sprintf("t%d", i), day, 1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := JoinSharded(ctx, txs, nil, 4); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestValue_Overflow(t *testing.T) {
	huge := decimal.RequireFromString("1e30")
	j := JoinedTransaction{
		Transaction: domain.Transaction{TransactionID: "t1", InputValue: huge, OutputValue: decimal.Zero, Fee: decimal.Zero},
		Bar:         &domain.PriceBar{Close: huge},
	}
	if _, err := Value(j); !errors.Is(err, domain.ErrConversionOverflow) {
		t.Fatalf("err = %v, want ErrConversionOverflow", err)
	}
}
