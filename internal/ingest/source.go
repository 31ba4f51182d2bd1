package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cenkalti/backoff/v4"

	"github.com/dvloznov/crypto-etl/internal/gcs"
	"github.com/dvloznov/crypto-etl/internal/logger"
	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

// ErrNoObjects is returned when a date has no transaction files.
var ErrNoObjects = errors.New("no objects under prefix")

// ParquetSuffix is the suffix of every object Fetch decodes.
const ParquetSuffix = ".parquet"

// DefaultRetryMaxElapsed bounds the retries of one object download.
const DefaultRetryMaxElapsed = time.Minute

// ParquetSource reads the raw parquet exports of one bucket.
type ParquetSource struct {
	storage    gcs.StorageService
	bucket     string
	newBackOff func() backoff.BackOff
}

// NewParquetSource creates a source reading from bucket. Transient download
// failures are retried with exponential backoff for up to maxElapsed.
func NewParquetSource(storage gcs.StorageService, bucket string, maxElapsed time.Duration) *ParquetSource {
	if maxElapsed <= 0 {
		maxElapsed = DefaultRetryMaxElapsed
	}
	return &ParquetSource{
		storage: storage,
		bucket:  bucket,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

// Fetch implements pipeline.IngestionSource.
func (s *ParquetSource) Fetch(ctx context.Context, asset string, date civil.Date, width pipeline.BarWidth) (pipeline.RawBatch, error) {
	var batch pipeline.RawBatch

	pricesURI := gcs.URI(s.bucket, PricesObject(asset, date, width.Label))
	bars, err := s.readObject(ctx, pricesURI)
	if err != nil {
		return batch, err
	}
	batch.PriceBars = bars

	prefix := TransactionsPrefix(asset, date)
	listed, err := s.storage.ListObjects(ctx, s.bucket, prefix)
	if err != nil {
		return batch, fmt.Errorf("Fetch: %w", err)
	}
	var uris []string
	for _, uri := range listed {
		if strings.HasSuffix(uri, ParquetSuffix) {
			uris = append(uris, uri)
		} else {
			logger.FromContext(ctx).Debug().Str("uri", uri).Msg("Skipping non-parquet object")
		}
	}
	if len(uris) == 0 {
		return batch, fmt.Errorf("Fetch: %w: %s", ErrNoObjects, gcs.URI(s.bucket, prefix))
	}
	for _, uri := range uris {
		rows, err := s.readObject(ctx, uri)
		if err != nil {
			return batch, err
		}
		batch.Transactions = append(batch.Transactions, rows...)
	}
	return batch, nil
}

func (s *ParquetSource) readObject(ctx context.Context, uri string) ([]pipeline.RawRow, error) {
	log := logger.FromContext(ctx)

	var data []byte
	op := func() error {
		b, err := s.storage.FetchFromGCS(ctx, uri)
		if err != nil {
			if errors.Is(err, gcs.ErrObjectNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("uri", uri).Dur("wait", wait).Msg("Download failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		return nil, fmt.Errorf("Fetch %s: %w", uri, err)
	}

	rows, err := DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("Fetch %s: %w", uri, err)
	}
	log.Debug().Str("uri", uri).Int("rows", len(rows)).Msg("Decoded parquet object")
	return rows, nil
}
