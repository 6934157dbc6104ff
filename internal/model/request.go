package model

import (
	"fmt"
	"math/big"
	"strings"
)

// RequestType is the closed set of pool submit request kinds.
type RequestType uint32

const (
	SupplyCollateral RequestType = iota
	WithdrawCollateral
	Supply
	Withdraw
	Borrow
	Repay
)

var requestTypeNames = map[RequestType]string{
	SupplyCollateral:   "supply_collateral",
	WithdrawCollateral: "withdraw_collateral",
	Supply:             "supply",
	Withdraw:           "withdraw",
	Borrow:             "borrow",
	Repay:              "repay",
}

// Valid reports whether t is one of the known request kinds.
func (t RequestType) Valid() bool {
	_, ok := requestTypeNames[t]
	return ok
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("request_type(%d)", uint32(t))
}

// ParseRequestType accepts the snake_case name or a few common aliases.
func ParseRequestType(input string) (RequestType, error) {
	name := strings.ToLower(strings.TrimSpace(input))
	name = strings.ReplaceAll(name, "-", "_")
	switch name {
	case "deposit":
		name = "supply_collateral"
	case "supply_collat":
		name = "supply_collateral"
	}
	for t, n := range requestTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown request type: %q", input)
}

// PositionRequest is one entry of the submit request vector.
type PositionRequest struct {
	Asset  string      `json:"address"`
	Amount *big.Int    `json:"amount"`
	Kind   RequestType `json:"request_type"`
}
