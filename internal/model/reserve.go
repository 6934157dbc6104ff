package model

import "math/big"

// ReserveConfig is the per-asset risk and rate configuration of a pool reserve.
// Factors and rates are 7-decimal fixed point.
type ReserveConfig struct {
	Index      uint32   `json:"index"`
	Decimals   uint32   `json:"decimals"`
	CFactor    uint32   `json:"c_factor"`
	LFactor    uint32   `json:"l_factor"`
	Util       uint32   `json:"util"`
	MaxUtil    uint32   `json:"max_util"`
	RBase      uint32   `json:"r_base"`
	ROne       uint32   `json:"r_one"`
	RTwo       uint32   `json:"r_two"`
	RThree     uint32   `json:"r_three"`
	Reactivity uint32   `json:"reactivity"`
	SupplyCap  *big.Int `json:"supply_cap,omitempty"`
	Enabled    bool     `json:"enabled"`
}

// ReserveData is the mutable state of a reserve as of the latest ledger.
type ReserveData struct {
	BRate          *big.Int `json:"b_rate"`
	DRate          *big.Int `json:"d_rate"`
	BSupply        *big.Int `json:"b_supply"`
	DSupply        *big.Int `json:"d_supply"`
	IRMod          *big.Int `json:"ir_mod"`
	BackstopCredit *big.Int `json:"backstop_credit"`
	LastTime       uint64   `json:"last_time"`
}

// Reserve bundles config and data for one asset, as returned by the pool's
// get_reserve getter.
type Reserve struct {
	Asset  string        `json:"asset"`
	Config ReserveConfig `json:"config"`
	Data   ReserveData   `json:"data"`
}

// PoolConfig is the pool-wide configuration record.
type PoolConfig struct {
	BackstopRate  uint32   `json:"bstop_rate"`
	MaxPositions  uint32   `json:"max_positions"`
	MinCollateral *big.Int `json:"min_collateral,omitempty"`
	Oracle        string   `json:"oracle"`
	Status        uint32   `json:"status"`
}

// Pool status values. Anything above PoolStatusOnIce blocks supply.
const (
	PoolStatusActive      uint32 = 0
	PoolStatusOnIce       uint32 = 2
	PoolStatusFrozen      uint32 = 4
	PoolStatusAdminFrozen uint32 = 5
)

// Positions holds a user's balances in a pool keyed by reserve index.
// Amounts are in b/d-token units.
type Positions struct {
	Liabilities map[uint32]*big.Int `json:"liabilities"`
	Collateral  map[uint32]*big.Int `json:"collateral"`
	Supply      map[uint32]*big.Int `json:"supply"`
}

// ReserveList is the ordered list of asset addresses listed in a pool.
type ReserveList []string

// RewardZone is the list of pool addresses the backstop currently rewards.
type RewardZone []string

// PoolName is the human-readable name stored in pool instance storage.
type PoolName string
