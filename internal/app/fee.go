package app

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10000

var errAmountOverflow = errors.New("order total exceeds the supported amount")

// ApplicationFee returns floor(gross * bps / 10000) in minor units.
func ApplicationFee(gross int64, bps int) int64 {
	if gross <= 0 || bps <= 0 {
		return 0
	}
	if bps > MaxBasisPoints {
		bps = MaxBasisPoints
	}
	fee := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(MaxBasisPoints)).
		Floor()
	return fee.IntPart()
}

// ToMinorUnits converts a decimal major-unit price to minor units with
// round-half-away-from-zero, e.g. 25.005 becomes 2501.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	cents := price.Mul(decimal.NewFromInt(100)).Round(0)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, errAmountOverflow
	}
	return cents.IntPart(), nil
}

// grossAmount sums unit * quantity over lines, failing on int64 overflow.
func grossAmount(lines []lineAmount) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.quantity != 0 && l.unit > math.MaxInt64/l.quantity {
			return 0, errAmountOverflow
		}
		sub := l.unit * l.quantity
		if total > math.MaxInt64-sub {
			return 0, errAmountOverflow
		}
		total += sub
	}
	return total, nil
}

type lineAmount struct {
	unit     int64
	quantity int64
}
