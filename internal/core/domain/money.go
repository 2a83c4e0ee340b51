package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a decimal amount without going through float64.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Credit adds amount to balance.
func Credit(balance, amount decimal.Decimal) decimal.Decimal {
	return balance.Add(amount)
}

// Debit subtracts amount from balance. The result is never negative.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}
	return balance.Sub(amount), nil
}
