// Package yield turns raw reserve rate state into annualized percentages.
package yield

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// PeriodsPerYear is the compounding frequency of the APY model.
const PeriodsPerYear = 365

// DefaultScale is the fixed-point scale of protocol rates.
const DefaultScale int64 = 10_000_000

// APY converts a fixed-point periodic rate into an annualized percentage:
// ((1 + r/scale/365)^365 - 1) * 100. The result is unrounded.
func APY(rate *big.Int, scale int64) float64 {
	if rate == nil || rate.Sign() == 0 {
		return 0
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	periodic, _ := new(big.Rat).SetFrac(rate, big.NewInt(scale)).Float64()
	apy := math.Pow(1+periodic/PeriodsPerYear, PeriodsPerYear) - 1
	return apy * 100
}

// Utilization is borrowed/supplied, exactly 0 when nothing is supplied and
// capped at 1.
func Utilization(supplied, borrowed *big.Int) float64 {
	if supplied == nil || supplied.Sign() <= 0 || borrowed == nil || borrowed.Sign() <= 0 {
		return 0
	}
	if borrowed.Cmp(supplied) >= 0 {
		return 1
	}
	u, _ := new(big.Rat).SetFrac(borrowed, supplied).Float64()
	return u
}

// Available is supplied minus borrowed, floored at zero.
func Available(supplied, borrowed *big.Int) *big.Int {
	s := orZero(supplied)
	b := orZero(borrowed)
	if b.Cmp(s) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(s, b)
}

// Compute derives YieldMetrics from a reserve snapshot.
func Compute(data model.ReserveData, scale int64) model.YieldMetrics {
	supplied := new(big.Int).Set(orZero(data.BSupply))
	borrowed := new(big.Int).Set(orZero(data.DSupply))
	return model.YieldMetrics{
		SupplyAPY:          APY(data.BRate, scale),
		BorrowAPY:          APY(data.DRate, scale),
		Utilization:        Utilization(supplied, borrowed),
		TotalSupplied:      supplied,
		TotalBorrowed:      borrowed,
		AvailableLiquidity: Available(supplied, borrowed),
	}
}

// ToDecimal renders a scaled integer amount in asset units.
func ToDecimal(amount *big.Int, decimals uint32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
