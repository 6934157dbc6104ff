package ledgerkey

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// ErrAbsent is returned when an instance entry exists but does not hold the
// requested field.
var ErrAbsent = errors.New("field absent from instance storage")

// DecodeValue decodes a base64 LedgerEntryData returned for a key of field.
func (c *Codec) DecodeValue(field Field, entryXDR string) (interface{}, error) {
	val, err := c.entryValue(field, entryXDR)
	if err != nil {
		return nil, err
	}
	return DecodeScVal(field, val)
}

func (c *Codec) entryValue(field Field, entryXDR string) (xdr.ScVal, error) {
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(entryXDR, &data); err != nil {
		return xdr.ScVal{}, fmt.Errorf("%s: %w: %v", field, ErrUnknownShape, err)
	}
	if data.Type != xdr.LedgerEntryTypeContractData || data.ContractData == nil {
		return xdr.ScVal{}, fmt.Errorf("%s: %w: entry type %s", field, ErrUnknownShape, data.Type)
	}
	val := data.ContractData.Val
	if !field.Instance() {
		return val, nil
	}

	if val.Type != xdr.ScValTypeScvContractInstance || val.Instance == nil {
		return xdr.ScVal{}, fmt.Errorf("%s: %w: want contract instance, got %s", field, ErrUnknownShape, val.Type)
	}
	if val.Instance.Storage == nil {
		return xdr.ScVal{}, fmt.Errorf("%s: %w", field, ErrAbsent)
	}
	want := c.Symbol(field)
	for _, e := range *val.Instance.Storage {
		if e.Key.Type == xdr.ScValTypeScvSymbol && e.Key.Sym != nil && string(*e.Key.Sym) == want {
			return e.Val, nil
		}
	}
	return xdr.ScVal{}, fmt.Errorf("%s: %w", field, ErrAbsent)
}

// DecodeScVal decodes a contract value into the record type of field.
func DecodeScVal(field Field, v xdr.ScVal) (interface{}, error) {
	var (
		out interface{}
		err error
	)
	switch field {
	case ReserveData:
		out, err = decodeReserveData(v)
	case ReserveConfig:
		out, err = decodeReserveConfig(v)
	case ReserveList:
		var list []string
		list, err = decodeAddresses(v)
		out = model.ReserveList(list)
	case BackstopRewardZone:
		var list []string
		list, err = decodeAddresses(v)
		out = model.RewardZone(list)
	case PoolConfig:
		out, err = decodePoolConfig(v)
	case PoolName:
		var name string
		name, err = AsText(v)
		out = model.PoolName(name)
	case UserPositions:
		out, err = decodePositions(v)
	default:
		return nil, fmt.Errorf("unknown field %d", int(field))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return out, nil
}

// DecodeReserve decodes the struct returned by the pool's get_reserve getter.
func DecodeReserve(v xdr.ScVal) (model.Reserve, error) {
	m, err := AsSymbolMap(v)
	if err != nil {
		return model.Reserve{}, fmt.Errorf("reserve: %w", err)
	}
	var out model.Reserve
	assetVal, ok := m["asset"]
	if !ok {
		return model.Reserve{}, fmt.Errorf("reserve: %w: missing asset", ErrUnknownShape)
	}
	if out.Asset, err = AsAddress(assetVal); err != nil {
		return model.Reserve{}, fmt.Errorf("reserve asset: %w", err)
	}
	cfgVal, ok := m["config"]
	if !ok {
		return model.Reserve{}, fmt.Errorf("reserve: %w: missing config", ErrUnknownShape)
	}
	if out.Config, err = decodeReserveConfig(cfgVal); err != nil {
		return model.Reserve{}, fmt.Errorf("reserve config: %w", err)
	}
	dataVal, ok := m["data"]
	if !ok {
		return model.Reserve{}, fmt.Errorf("reserve: %w: missing data", ErrUnknownShape)
	}
	if out.Data, err = decodeReserveData(dataVal); err != nil {
		return model.Reserve{}, fmt.Errorf("reserve data: %w", err)
	}
	return out, nil
}

// DecodeAccountSequence returns the sequence number of an account entry.
func DecodeAccountSequence(entryXDR string) (int64, error) {
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(entryXDR, &data); err != nil {
		return 0, fmt.Errorf("account: %w: %v", ErrUnknownShape, err)
	}
	if data.Type != xdr.LedgerEntryTypeAccount || data.Account == nil {
		return 0, fmt.Errorf("account: %w: entry type %s", ErrUnknownShape, data.Type)
	}
	return int64(data.Account.SeqNum), nil
}

// structFields reads named members of a symbol-keyed map, remembering the
// first failure.
type structFields struct {
	m   map[string]xdr.ScVal
	err error
}

func newStructFields(v xdr.ScVal) *structFields {
	m, err := AsSymbolMap(v)
	return &structFields{m: m, err: err}
}

func (s *structFields) get(name string, optional bool) (xdr.ScVal, bool) {
	if s.err != nil {
		return xdr.ScVal{}, false
	}
	v, ok := s.m[name]
	if !ok && !optional {
		s.err = fmt.Errorf("%w: missing %s", ErrUnknownShape, name)
	}
	return v, ok
}

func (s *structFields) u32(name string) uint32 {
	v, ok := s.get(name, false)
	if !ok {
		return 0
	}
	out, err := AsU32(v)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return out
}

func (s *structFields) u64(name string) uint64 {
	v, ok := s.get(name, false)
	if !ok {
		return 0
	}
	out, err := AsU64(v)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return out
}

func (s *structFields) i128(name string, optional bool) *big.Int {
	v, ok := s.get(name, optional)
	if !ok {
		return nil
	}
	out, err := AsI128(v)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return out
}

func (s *structFields) address(name string) string {
	v, ok := s.get(name, false)
	if !ok {
		return ""
	}
	out, err := AsAddress(v)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return out
}

func decodeReserveData(v xdr.ScVal) (model.ReserveData, error) {
	s := newStructFields(v)
	out := model.ReserveData{
		BRate:          s.i128("b_rate", false),
		DRate:          s.i128("d_rate", false),
		BSupply:        s.i128("b_supply", false),
		DSupply:        s.i128("d_supply", false),
		IRMod:          s.i128("ir_mod", false),
		BackstopCredit: s.i128("backstop_credit", true),
		LastTime:       s.u64("last_time"),
	}
	if s.err != nil {
		return model.ReserveData{}, s.err
	}
	if out.BackstopCredit == nil {
		out.BackstopCredit = new(big.Int)
	}
	return out, nil
}

func decodeReserveConfig(v xdr.ScVal) (model.ReserveConfig, error) {
	s := newStructFields(v)
	out := model.ReserveConfig{
		Index:      s.u32("index"),
		Decimals:   s.u32("decimals"),
		CFactor:    s.u32("c_factor"),
		LFactor:    s.u32("l_factor"),
		Util:       s.u32("util"),
		MaxUtil:    s.u32("max_util"),
		RBase:      s.u32("r_base"),
		ROne:       s.u32("r_one"),
		RTwo:       s.u32("r_two"),
		RThree:     s.u32("r_three"),
		Reactivity: s.u32("reactivity"),
		SupplyCap:  s.i128("supply_cap", true),
		Enabled:    true,
	}
	if ev, ok := s.get("enabled", true); ok {
		enabled, err := AsBool(ev)
		if err != nil && s.err == nil {
			s.err = fmt.Errorf("enabled: %w", err)
		}
		out.Enabled = enabled
	}
	if s.err != nil {
		return model.ReserveConfig{}, s.err
	}
	return out, nil
}

func decodePoolConfig(v xdr.ScVal) (model.PoolConfig, error) {
	s := newStructFields(v)
	out := model.PoolConfig{
		BackstopRate:  s.u32("bstop_rate"),
		MaxPositions:  s.u32("max_positions"),
		MinCollateral: s.i128("min_collateral", true),
		Oracle:        s.address("oracle"),
		Status:        s.u32("status"),
	}
	if s.err != nil {
		return model.PoolConfig{}, s.err
	}
	return out, nil
}

func decodePositions(v xdr.ScVal) (model.Positions, error) {
	m, err := AsSymbolMap(v)
	if err != nil {
		return model.Positions{}, err
	}
	var out model.Positions
	for _, part := range []struct {
		name string
		dst  *map[uint32]*big.Int
	}{
		{"liabilities", &out.Liabilities},
		{"collateral", &out.Collateral},
		{"supply", &out.Supply},
	} {
		pv, ok := m[part.name]
		if !ok {
			return model.Positions{}, fmt.Errorf("%w: missing %s", ErrUnknownShape, part.name)
		}
		balances, err := decodeBalances(pv)
		if err != nil {
			return model.Positions{}, fmt.Errorf("%s: %w", part.name, err)
		}
		*part.dst = balances
	}
	return out, nil
}

func decodeBalances(v xdr.ScVal) (map[uint32]*big.Int, error) {
	entries, err := AsMap(v)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]*big.Int, len(entries))
	for _, e := range entries {
		idx, err := AsU32(e.Key)
		if err != nil {
			return nil, err
		}
		amt, err := AsI128(e.Val)
		if err != nil {
			return nil, err
		}
		out[idx] = amt
	}
	return out, nil
}

func decodeAddresses(v xdr.ScVal) ([]string, error) {
	items, err := AsVec(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		addr, err := AsAddress(item)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
