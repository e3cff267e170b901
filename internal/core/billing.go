package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Derive computes the bill of one period from the previous and current
// cumulative meter readings, the fixed rent and the rate per metered unit.
//
// A current reading below the previous one never produces a bill, nor
// does a negative rent. Arithmetic is exact; callers round for display.
func Derive(previous, current, rent, rate decimal.Decimal) (Bill, error) {
	if current.LessThan(previous) {
		return Bill{}, fmt.Errorf("%w: current %s < previous %s", ErrInvalidReading, current, previous)
	}
	if rent.IsNegative() {
		return Bill{}, fmt.Errorf("%w: %s", ErrInvalidRent, rent)
	}

	used := current.Sub(previous)
	charge := used.Mul(rate)
	return Bill{
		PreviousReading: previous,
		CurrentReading:  current,
		UnitsUsed:       used,
		UsageCharge:     charge,
		Rent:            rent,
		Total:           rent.Add(charge),
	}, nil
}
