package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/crypto-etl/internal/domain"
)

// Value sets the USD fields of a joined transaction from its bar's close
// price. Unmatched transactions keep all three USD fields null.
func Value(j JoinedTransaction) (domain.Transaction, error) {
	tx := j.Transaction
	tx.InputValueUSD = decimal.NullDecimal{}
	tx.OutputValueUSD = decimal.NullDecimal{}
	tx.FeeUSD = decimal.NullDecimal{}
	if j.Bar == nil {
		return tx, nil
	}

	price := j.Bar.Close
	var err error
	if tx.InputValueUSD, err = usd(tx.InputValue, price); err != nil {
		return tx, fmt.Errorf("Value %s input_value: %w", tx.TransactionID, err)
	}
	if tx.OutputValueUSD, err = usd(tx.OutputValue, price); err != nil {
		return tx, fmt.Errorf("Value %s output_value: %w", tx.TransactionID, err)
	}
	if tx.FeeUSD, err = usd(tx.Fee, price); err != nil {
		return tx, fmt.Errorf("Value %s fee: %w", tx.TransactionID, err)
	}
	return tx, nil
}

func usd(amount, price decimal.Decimal) (decimal.NullDecimal, error) {
	v := amount.Mul(price)
	if err := checkFits(v, bigNumericIntegerDigits, bigNumericScale); err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}
