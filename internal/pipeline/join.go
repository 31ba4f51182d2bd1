package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// JoinedTransaction is a converted transaction and the price bar sharing its
// bucket, if any.
type JoinedTransaction struct {
	Transaction domain.Transaction
	Bar         *domain.PriceBar
}

type barKey struct {
	asset string
	start int64 // unix seconds of the bucket start
}

// BarIndex looks up price bars by (asset, open_time).
type BarIndex map[barKey]*domain.PriceBar

// IndexPriceBars builds the join index. Two bars with the same asset and
// open_time violate the source contract and are rejected.
func IndexPriceBars(bars []domain.PriceBar) (BarIndex, error) {
	idx := make(BarIndex, len(bars))
	for i := range bars {
		b := &bars[i]
		k := barKey{asset: b.Asset, start: b.OpenTime.Unix()}
		if _, dup := idx[k]; dup {
			return nil, fmt.Errorf("IndexPriceBars: %w: %s at %s",
				domain.ErrDuplicatePriceBar, b.Asset, b.OpenTime.UTC().Format(time.RFC3339))
		}
		idx[k] = b
	}
	return idx, nil
}

// Lookup returns the bar whose open_time equals bucket exactly. There is no
// fallback to an earlier bar.
func (idx BarIndex) Lookup(asset string, bucket time.Time) *domain.PriceBar {
	return idx[barKey{asset: asset, start: bucket.Unix()}]
}

// Join attaches to each transaction the bar whose open_time equals its
// bucket_timestamp. Every transaction is kept, in input order.
func Join(txs []domain.Transaction, bars []domain.PriceBar) ([]JoinedTransaction, error) {
	idx, err := IndexPriceBars(bars)
	if err != nil {
		return nil, err
	}
	out := make([]JoinedTransaction, len(txs))
	joinRange(idx, txs, out)
	return out, nil
}

// JoinSharded is Join with the transactions split into at most shards
// contiguous ranges probed concurrently. The index is read-only so the
// shards need no coordination.
func JoinSharded(ctx context.Context, txs []domain.Transaction, bars []domain.PriceBar, shards int) ([]JoinedTransaction, error) {
	if shards <= 1 || len(txs) < 2*shards {
		return Join(txs, bars)
	}
	idx, err := IndexPriceBars(bars)
	if err != nil {
		return nil, err
	}

	out := make([]JoinedTransaction, len(txs))
	size := (len(txs) + shards - 1) / shards

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(txs); lo += size {
		hi := min(lo+size, len(txs))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			joinRange(idx, txs[lo:hi], out[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("JoinSharded: %w", err)
	}
	return out, nil
}

func joinRange(idx BarIndex, txs []domain.Transaction, out []JoinedTransaction) {
	for i, tx := range txs {
		out[i] = JoinedTransaction{
			Transaction: tx,
			Bar:         idx.Lookup(tx.Asset, tx.BucketTimestamp),
		}
	}
}
