package model

import (
	"github.com/shopspring/decimal"
)

// Provenance tells callers where a record came from.
type Provenance string

const (
	ProvenanceDirect     Provenance = "direct"
	ProvenanceSimulation Provenance = "simulation"
	ProvenanceConfigured Provenance = "configured"
)

// PoolSummary is one entry of pool discovery.
type PoolSummary struct {
	Address    string     `json:"pool_address"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Provenance Provenance `json:"provenance"`
}

// Opportunity is a ranked supply yield for one asset in one pool.
type Opportunity struct {
	Pool               string          `json:"pool_address"`
	PoolName           string          `json:"pool"`
	Asset              string          `json:"asset"`
	AssetAddress       string          `json:"asset_address"`
	APY                float64         `json:"apy"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
	Utilization        float64         `json:"utilization"`
}

// AssetPosition is a user's balance for one reserve, in asset units.
type AssetPosition struct {
	Asset        string          `json:"asset"`
	Symbol       string          `json:"symbol"`
	Supplied     decimal.Decimal `json:"supplied"`
	Collateral   decimal.Decimal `json:"collateral"`
	Borrowed     decimal.Decimal `json:"borrowed"`
	IsCollateral bool            `json:"is_collateral"`
}

// PositionSnapshot is a user's full position set in one pool.
type PositionSnapshot struct {
	Pool       string          `json:"pool"`
	PoolName   string          `json:"pool_name,omitempty"`
	Account    string          `json:"account"`
	Positions  []AssetPosition `json:"positions"`
	Provenance Provenance      `json:"provenance"`
}
