package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept for settlement amounts.
const AmountScale = 6

// MaxAmount is the exclusive upper bound of a settlement amount. Amounts are
// stored as NUMERIC(20,6), leaving 14 digits for the integer part.
var MaxAmount = decimal.New(1, 14)

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = fmt.Errorf("amount has more than %d decimal places", AmountScale)
	ErrAmountTooLarge    = fmt.Errorf("amount must be less than %s", MaxAmount.String())
)

// ParseAmount parses a positive decimal amount with at most AmountScale places.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks that d is positive, below MaxAmount and fits the
// settlement scale.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrAmountNotPositive
	}
	if d.GreaterThanOrEqual(MaxAmount) {
		return ErrAmountTooLarge
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return ErrAmountPrecision
	}
	return nil
}

// RoundAmount rounds d down to the settlement scale.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(AmountScale)
}
