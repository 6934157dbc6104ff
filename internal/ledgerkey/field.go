package ledgerkey

import (
	"fmt"
	"strings"
)

// Field is a logical storage field of a pool or backstop contract.
type Field int

const (
	ReserveData Field = iota + 1
	ReserveConfig
	ReserveList
	PoolConfig
	PoolName
	UserPositions
	BackstopRewardZone
)

type fieldDef struct {
	name     string
	symbol   string
	arity    int
	instance bool
}

var fieldDefs = map[Field]fieldDef{
	ReserveData:        {name: "reserve_data", symbol: "ResData", arity: 1},
	ReserveConfig:      {name: "reserve_config", symbol: "ResConfig", arity: 1},
	ReserveList:        {name: "reserve_list", symbol: "ResList"},
	PoolConfig:         {name: "pool_config", symbol: "Config", instance: true},
	PoolName:           {name: "pool_name", symbol: "Name", instance: true},
	UserPositions:      {name: "user_positions", symbol: "Positions", arity: 1},
	BackstopRewardZone: {name: "backstop_reward_zone", symbol: "RZ"},
}

func (f Field) String() string {
	if def, ok := fieldDefs[f]; ok {
		return def.name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Arity is the number of address arguments the key takes.
func (f Field) Arity() int { return fieldDefs[f].arity }

// Instance reports whether the field lives inside contract instance storage
// rather than in its own persistent entry.
func (f Field) Instance() bool { return fieldDefs[f].instance }

// DefaultSymbol is the storage symbol used when no override is configured.
func (f Field) DefaultSymbol() string { return fieldDefs[f].symbol }

// Fields lists every known field.
func Fields() []Field {
	return []Field{ReserveData, ReserveConfig, ReserveList, PoolConfig, PoolName, UserPositions, BackstopRewardZone}
}

// ParseField accepts the field's snake_case name or its default symbol.
func ParseField(input string) (Field, error) {
	key := strings.TrimSpace(input)
	for f, def := range fieldDefs {
		if strings.EqualFold(def.name, key) || def.symbol == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field: %q", input)
}
