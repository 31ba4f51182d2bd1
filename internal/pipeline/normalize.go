package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// RawRow is one source record: source column name -> scalar value.
type RawRow map[string]any

// CanonicalRow is a RawRow after column renaming and asset injection.
type CanonicalRow map[string]any

// SourceKind selects the column table used by Normalize.
type SourceKind string

const (
	SourcePriceBars    SourceKind = "price_bars"
	SourceTransactions SourceKind = "transactions"
)

// AssetColumn is the literal asset label injected into every canonical row.
const AssetColumn = "cryptocurrency"

// Canonical column names.
const (
	ColOpenTime       = "open_time"
	ColCloseTime      = "close_time"
	ColOpenPrice      = "open_price"
	ColHighPrice      = "high_price"
	ColLowPrice       = "low_price"
	ColClosePrice     = "close_price"
	ColVolume         = "volume"
	ColNumberOfTrades = "number_of_trades"

	ColTransactionID  = "transaction_id"
	ColBlockTimestamp = "block_timestamp"
	ColInputValue     = "input_value"
	ColOutputValue    = "output_value"
	ColFee            = "fee"
)

// columnTable maps source column names to canonical names in both directions.
type columnTable struct {
	toCanonical map[string]string
	toSource    map[string]string
	required    []string
}

func newColumnTable(renames map[string]string, required ...string) columnTable {
	t := columnTable{
		toCanonical: renames,
		toSource:    make(map[string]string, len(renames)),
		required:    required,
	}
	for src, canon := range renames {
		t.toSource[canon] = src
	}
	return t
}

var columnTables = map[SourceKind]columnTable{
	SourcePriceBars: newColumnTable(map[string]string{
		"Open time":                    ColOpenTime,
		"Open":                         ColOpenPrice,
		"High":                         ColHighPrice,
		"Low":                          ColLowPrice,
		"Close":                        ColClosePrice,
		"Volume":                       ColVolume,
		"Close time":                   ColCloseTime,
		"Quote asset volume":           "quote_asset_volume",
		"Number of trades":             ColNumberOfTrades,
		"Taker buy base asset volume":  "taker_buy_base_asset_volume",
		"Taker buy quote asset volume": "taker_buy_quote_asset_volume",
		"Ignore":                       "ignore",
	},
		ColOpenTime, ColOpenPrice, ColHighPrice, ColLowPrice, ColClosePrice, ColVolume, ColNumberOfTrades,
	),
	SourceTransactions: newColumnTable(map[string]string{
		"hash": ColTransactionID,
	},
		ColTransactionID, ColBlockTimestamp, ColInputValue, ColOutputValue, ColFee,
	),
}

// CanonicalColumn returns the canonical name for a source column.
// Unknown columns keep their source name.
func CanonicalColumn(kind SourceKind, source string) string {
	if c, ok := columnTables[kind].toCanonical[source]; ok {
		return c
	}
	return source
}

// SourceColumn returns the source name for a canonical column.
func SourceColumn(kind SourceKind, canonical string) string {
	if s, ok := columnTables[kind].toSource[canonical]; ok {
		return s
	}
	return canonical
}

// Normalize renames known columns, passes unknown ones through and injects
// the asset label. Missing required columns and two source columns mapping
// to one canonical name are a schema mismatch.
func Normalize(kind SourceKind, raw RawRow, asset string) (CanonicalRow, error) {
	table, ok := columnTables[kind]
	if !ok {
		return nil, fmt.Errorf("Normalize: unknown source kind %q", kind)
	}

	row := make(CanonicalRow, len(raw)+1)
	from := make(map[string]string, len(raw))
	for col, v := range raw {
		canon := CanonicalColumn(kind, col)
		if prev, dup := from[canon]; dup {
			a, b := min(prev, col), max(prev, col)
			return nil, fmt.Errorf("Normalize %s: %w: columns %q and %q both map to %q",
				kind, domain.ErrSchemaMismatch, a, b, canon)
		}
		from[canon] = col
		row[canon] = v
	}
	// The injected label replaces any source column of the same name.
	row[AssetColumn] = asset

	var missing []string
	for _, col := range table.required {
		if v, ok := row[col]; !ok || v == nil {
			missing = append(missing, fmt.Sprintf("%s (source %q)", col, SourceColumn(kind, col)))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("Normalize %s: %w: missing required columns %s",
			kind, domain.ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return row, nil
}

// SourceTransaction is a normalized transaction still in minor units.
type SourceTransaction struct {
	Asset          string
	TransactionID  string
	BlockTimestamp time.Time

	InputValueMinor  decimal.Decimal
	OutputValueMinor decimal.Decimal
	FeeMinor         decimal.Decimal
}

// DecodePriceBar converts a canonical price row into a PriceBar. open_time
// must sit on a width boundary.
func DecodePriceBar(row CanonicalRow, width time.Duration) (domain.PriceBar, error) {
	var (
		bar domain.PriceBar
		err error
	)
	if bar.Asset, err = stringField(row, AssetColumn); err != nil {
		return bar, err
	}
	if bar.OpenTime, err = timeField(row, ColOpenTime); err != nil {
		return bar, err
	}
	if _, ok := row[ColCloseTime]; ok && row[ColCloseTime] != nil {
		if bar.CloseTime, err = timeField(row, ColCloseTime); err != nil {
			return bar, err
		}
	}
	if bar.Open, err = decimalField(row, ColOpenPrice); err != nil {
		return bar, err
	}
	if bar.High, err = decimalField(row, ColHighPrice); err != nil {
		return bar, err
	}
	if bar.Low, err = decimalField(row, ColLowPrice); err != nil {
		return bar, err
	}
	if bar.Close, err = decimalField(row, ColClosePrice); err != nil {
		return bar, err
	}
	if bar.Volume, err = decimalField(row, ColVolume); err != nil {
		return bar, err
	}
	if bar.TradeCount, err = int64Field(row, ColNumberOfTrades); err != nil {
		return bar, err
	}

	if !Aligned(bar.OpenTime, width) {
		return bar, fmt.Errorf("%w: open_time %s is not aligned to %s bars",
			domain.ErrSchemaMismatch, bar.OpenTime.Format(time.RFC3339), width)
	}
	bar.PartitionMonth = domain.MonthOf(bar.OpenTime)
	return bar, nil
}

// DecodeSourceTransaction converts a canonical transaction row.
func DecodeSourceTransaction(row CanonicalRow) (SourceTransaction, error) {
	var (
		tx  SourceTransaction
		err error
	)
	if tx.Asset, err = stringField(row, AssetColumn); err != nil {
		return tx, err
	}
	if tx.TransactionID, err = stringField(row, ColTransactionID); err != nil {
		return tx, err
	}
	if tx.BlockTimestamp, err = timeField(row, ColBlockTimestamp); err != nil {
		return tx, err
	}
	if tx.InputValueMinor, err = decimalField(row, ColInputValue); err != nil {
		return tx, err
	}
	if tx.OutputValueMinor, err = decimalField(row, ColOutputValue); err != nil {
		return tx, err
	}
	if tx.FeeMinor, err = decimalField(row, ColFee); err != nil {
		return tx, err
	}
	return tx, nil
}

func mismatch(key string, v any, want string) error {
	return fmt.Errorf("%w: field %q has type %T, want %s", domain.ErrSchemaMismatch, key, v, want)
}

func stringField(m CanonicalRow, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing required field %q", domain.ErrSchemaMismatch, key)
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("%w: required field %q is empty", domain.ErrSchemaMismatch, key)
		}
		return val, nil
	case []byte:
		return stringField(CanonicalRow{key: string(val)}, key)
	default:
		return "", mismatch(key, v, "string")
	}
}

func decimalField(m CanonicalRow, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: missing required field %q", domain.ErrSchemaMismatch, key)
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: field %q: %q is not a decimal", domain.ErrSchemaMismatch, key, val)
		}
		return d, nil
	default:
		return decimal.Decimal{}, mismatch(key, v, "number")
	}
}

func int64Field(m CanonicalRow, key string) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing required field %q", domain.ErrSchemaMismatch, key)
	}
	switch val := v.(type) {
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int:
		return int64(val), nil
	case float64:
		if val != float64(int64(val)) {
			return 0, fmt.Errorf("%w: field %q: %v is not an integer", domain.ErrSchemaMismatch, key, val)
		}
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %q is not an integer", domain.ErrSchemaMismatch, key, val)
		}
		return n, nil
	default:
		return 0, mismatch(key, v, "integer")
	}
}

// Layouts accepted for timestamp strings. Strings without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func timeField(m CanonicalRow, key string) (time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("%w: missing required field %q", domain.ErrSchemaMismatch, key)
	}
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case int64:
		// Exchange exports carry epoch milliseconds.
		return time.UnixMilli(val).UTC(), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("%w: field %q: %q is not a timestamp", domain.ErrSchemaMismatch, key, val)
	default:
		return time.Time{}, mismatch(key, v, "timestamp")
	}
}
