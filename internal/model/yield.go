package model

import (
	"math"
	"math/big"
)

// YieldMetrics is derived from ReserveData on every read and never persisted.
// APY values are percentages.
type YieldMetrics struct {
	SupplyAPY          float64  `json:"supply_apy"`
	BorrowAPY          float64  `json:"borrow_apy"`
	Utilization        float64  `json:"utilization"`
	TotalSupplied      *big.Int `json:"total_supplied"`
	TotalBorrowed      *big.Int `json:"total_borrowed"`
	AvailableLiquidity *big.Int `json:"available_liquidity"`
}

// Rounded returns the display view: APYs at 2 decimals, utilization at 4.
func (m YieldMetrics) Rounded() YieldMetrics {
	out := m
	out.SupplyAPY = roundTo(m.SupplyAPY, 2)
	out.BorrowAPY = roundTo(m.BorrowAPY, 2)
	out.Utilization = roundTo(m.Utilization, 4)
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
