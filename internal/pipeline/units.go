package pipeline

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

const (
	// MinorUnitExponent is log10 of the minor units per major unit (satoshi per BTC).
	MinorUnitExponent = 8

	// MinorUnitsPerMajor is the fixed divisor applied to value, output and fee.
	MinorUnitsPerMajor = 100_000_000

	// NUMERIC(38, 9) limits of the warehouse value columns.
	numericIntegerDigits = 29
	numericScale         = 9

	// BIGNUMERIC(76, 38) limits of the USD columns.
	bigNumericIntegerDigits = 38
	bigNumericScale         = 38
)

// ToMajorUnits rescales an amount in minor units to major units by an exact
// decimal shift. The result must fit the warehouse NUMERIC type.
func ToMajorUnits(minor decimal.Decimal) (decimal.Decimal, error) {
	major := minor.Shift(-MinorUnitExponent)
	if err := checkFits(major, numericIntegerDigits, numericScale); err != nil {
		return decimal.Decimal{}, fmt.Errorf("ToMajorUnits: %s minor units: %w", minor, err)
	}
	return major, nil
}

// ToMinorUnits is the inverse of ToMajorUnits.
func ToMinorUnits(major decimal.Decimal) decimal.Decimal {
	return major.Shift(MinorUnitExponent)
}

// Convert turns a normalized source transaction into major units and
// assigns its bucket and partition month.
func Convert(src SourceTransaction, width BarWidth) (domain.Transaction, error) {
	tx := domain.Transaction{
		Asset:           src.Asset,
		TransactionID:   src.TransactionID,
		BlockTimestamp:  src.BlockTimestamp,
		BucketTimestamp: Bucket(src.BlockTimestamp, width.Duration),
		PartitionMonth:  domain.MonthOf(src.BlockTimestamp),
	}
	var err error
	if tx.InputValue, err = ToMajorUnits(src.InputValueMinor); err != nil {
		return tx, fmt.Errorf("Convert %s input_value: %w", src.TransactionID, err)
	}
	if tx.OutputValue, err = ToMajorUnits(src.OutputValueMinor); err != nil {
		return tx, fmt.Errorf("Convert %s output_value: %w", src.TransactionID, err)
	}
	if tx.Fee, err = ToMajorUnits(src.FeeMinor); err != nil {
		return tx, fmt.Errorf("Convert %s fee: %w", src.TransactionID, err)
	}
	return tx, nil
}

func checkFits(d decimal.Decimal, intDigits, scale int) error {
	if d.IsZero() {
		return nil
	}
	// Trailing zeros do not count against the scale.
	if s := fractionalDigits(d); s > scale {
		return fmt.Errorf("%w: %d fractional digits exceed scale %d", domain.ErrConversionOverflow, s, scale)
	}
	if n := integerDigits(d); n > intDigits {
		return fmt.Errorf("%w: %d integer digits exceed %d", domain.ErrConversionOverflow, n, intDigits)
	}
	return nil
}

func fractionalDigits(d decimal.Decimal) int {
	exp := d.Exponent()
	if exp >= 0 {
		return 0
	}
	coef := new(big.Int).Abs(d.Coefficient())
	ten := big.NewInt(10)
	rem := new(big.Int)
	for exp < 0 {
		q := new(big.Int)
		q.QuoRem(coef, ten, rem)
		if rem.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}
	return int(-exp)
}

func integerDigits(d decimal.Decimal) int {
	i := d.Abs().Truncate(0)
	if i.IsZero() {
		return 0
	}
	return len(i.String())
}
