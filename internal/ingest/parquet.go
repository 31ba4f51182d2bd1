package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

const readBatchSize = 1024

// julianUnixEpoch is the Julian day number of 1970-01-01, used by INT96 timestamps.
const julianUnixEpoch = 2440588

// column describes how to turn one leaf column's values into Go scalars.
type column struct {
	name    string
	logical *format.LogicalType
}

// DecodeParquet reads every row of a flat parquet file into raw rows keyed by
// column name. Timestamps become time.Time (UTC), decimals decimal.Decimal,
// strings string, integers int64 and floating point float64. Nulls are kept
// as nil.
func DecodeParquet(data []byte) ([]pipeline.RawRow, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("DecodeParquet: open file: %w", err)
	}

	schema := f.Schema()
	paths := schema.Columns()
	columns := make([]column, len(paths))
	for i, path := range paths {
		if len(path) != 1 {
			return nil, fmt.Errorf("DecodeParquet: nested column %v is not supported", path)
		}
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return nil, fmt.Errorf("DecodeParquet: column %v not found in schema", path)
		}
		columns[i] = column{name: path[0], logical: leaf.Node.Type().LogicalType()}
	}

	out := make([]pipeline.RawRow, 0, f.NumRows())
	buf := make([]parquet.Row, readBatchSize)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				raw, convErr := decodeRow(row, columns)
				if convErr != nil {
					rows.Close()
					return nil, fmt.Errorf("DecodeParquet: row %d: %w", len(out), convErr)
				}
				out = append(out, raw)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("DecodeParquet: read rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("DecodeParquet: close rows: %w", err)
		}
	}
	return out, nil
}

func decodeRow(row parquet.Row, columns []column) (pipeline.RawRow, error) {
	raw := make(pipeline.RawRow, len(columns))
	for _, c := range columns {
		raw[c.name] = nil
	}
	for _, v := range row {
		idx := v.Column()
		if idx < 0 || idx >= len(columns) {
			return nil, fmt.Errorf("value for unknown column index %d", idx)
		}
		c := columns[idx]
		val, err := decodeValue(v, c.logical)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.name, err)
		}
		raw[c.name] = val
	}
	return raw, nil
}

func decodeValue(v parquet.Value, lt *format.LogicalType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean(), nil

	case parquet.Int32:
		n := int64(v.Int32())
		switch {
		case lt != nil && lt.Date != nil:
			return time.Unix(n*86400, 0).UTC(), nil
		case lt != nil && lt.Decimal != nil:
			return decimal.New(n, -lt.Decimal.Scale), nil
		}
		return n, nil

	case parquet.Int64:
		n := v.Int64()
		switch {
		case lt != nil && lt.Timestamp != nil:
			return timestampValue(n, lt.Timestamp.Unit), nil
		case lt != nil && lt.Decimal != nil:
			return decimal.New(n, -lt.Decimal.Scale), nil
		}
		return n, nil

	case parquet.Int96:
		i := v.Int96()
		nanos := int64(uint64(i[1])<<32 | uint64(i[0]))
		days := int64(i[2]) - julianUnixEpoch
		return time.Unix(days*86400, nanos).UTC(), nil

	case parquet.Float:
		return float64(v.Float()), nil

	case parquet.Double:
		return v.Double(), nil

	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := v.ByteArray()
		if lt != nil && lt.Decimal != nil {
			return decimalFromBytes(b, lt.Decimal.Scale), nil
		}
		return string(b), nil

	default:
		return nil, fmt.Errorf("unsupported parquet kind %s", v.Kind())
	}
}

func timestampValue(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(n).UTC()
	case unit.Micros != nil:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

// decimalFromBytes decodes a big-endian two's complement unscaled integer.
func decimalFromBytes(b []byte, scale int32) decimal.Decimal {
	unscaled := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		// Negative: subtract 2^(8*len).
		unscaled.Sub(unscaled, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return decimal.NewFromBigInt(unscaled, -scale)
}
