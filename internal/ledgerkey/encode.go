package ledgerkey

import (
	"fmt"
	"math/big"

	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// EncodeValue is the inverse of DecodeScVal. It exists so fixtures and
// round-trip checks can produce contract values.
func EncodeValue(field Field, record interface{}) (xdr.ScVal, error) {
	switch field {
	case ReserveData:
		r, ok := record.(model.ReserveData)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodeReserveData(r)
	case ReserveConfig:
		r, ok := record.(model.ReserveConfig)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodeReserveConfig(r)
	case ReserveList:
		r, ok := record.(model.ReserveList)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodeAddresses(r)
	case BackstopRewardZone:
		r, ok := record.(model.RewardZone)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodeAddresses(r)
	case PoolConfig:
		r, ok := record.(model.PoolConfig)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodePoolConfig(r)
	case PoolName:
		r, ok := record.(model.PoolName)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return String(string(r)), nil
	case UserPositions:
		r, ok := record.(model.Positions)
		if !ok {
			return xdr.ScVal{}, recordErr(field, record)
		}
		return encodePositions(r)
	}
	return xdr.ScVal{}, fmt.Errorf("unknown field %d", int(field))
}

// EncodeReserve builds the get_reserve return value.
func EncodeReserve(r model.Reserve) (xdr.ScVal, error) {
	asset, err := Address(r.Asset)
	if err != nil {
		return xdr.ScVal{}, err
	}
	cfg, err := encodeReserveConfig(r.Config)
	if err != nil {
		return xdr.ScVal{}, err
	}
	data, err := encodeReserveData(r.Data)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return SymbolMap(map[string]xdr.ScVal{
		"asset":  asset,
		"config": cfg,
		"data":   data,
		"scalar": MustI128(big.NewInt(10_000_000)),
	}), nil
}

// EncodeEntry renders record as the ledger entry stored under field's key for
// strategy s. It returns the key and the base64 LedgerEntryData.
func (c *Codec) EncodeEntry(contract string, field Field, args []string, s Strategy, record interface{}) (string, string, error) {
	if field.Instance() {
		return c.EncodeInstance(contract, map[Field]interface{}{field: record})
	}
	key, err := c.ledgerKey(contract, field, args, s)
	if err != nil {
		return "", "", err
	}
	val, err := EncodeValue(field, record)
	if err != nil {
		return "", "", err
	}
	return marshalEntry(key, val)
}

// EncodeInstance renders a contract instance entry whose storage holds values.
func (c *Codec) EncodeInstance(contract string, values map[Field]interface{}) (string, string, error) {
	var field Field
	entries := make([]MapEntry, 0, len(values))
	for f, record := range values {
		if !f.Instance() {
			return "", "", fmt.Errorf("%s is not an instance field", f)
		}
		val, err := EncodeValue(f, record)
		if err != nil {
			return "", "", err
		}
		entries = append(entries, MapEntry{Key: Symbol(c.Symbol(f)), Val: val})
		field = f
	}
	if field == 0 {
		field = PoolConfig
	}
	key, err := c.ledgerKey(contract, field, nil, StrategyInstance)
	if err != nil {
		return "", "", err
	}
	storage := Map(entries...)
	instance := xdr.ScVal{
		Type: xdr.ScValTypeScvContractInstance,
		Instance: &xdr.ScContractInstance{
			Executable: xdr.ContractExecutable{Type: xdr.ContractExecutableTypeContractExecutableStellarAsset},
			Storage:    *storage.Map,
		},
	}
	return marshalEntry(key, instance)
}

func marshalEntry(key xdr.LedgerKey, val xdr.ScVal) (string, string, error) {
	data := xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.ContractDataEntry{
			Contract:   key.ContractData.Contract,
			Key:        key.ContractData.Key,
			Durability: key.ContractData.Durability,
			Val:        val,
		},
	}
	keyB64, err := xdr.MarshalBase64(key)
	if err != nil {
		return "", "", err
	}
	dataB64, err := xdr.MarshalBase64(data)
	if err != nil {
		return "", "", err
	}
	return keyB64, dataB64, nil
}

// AccountKey returns the base64 LedgerKey of a classic account.
func AccountKey(address string) (string, error) {
	aid, err := xdr.AddressToAccountId(address)
	if err != nil {
		return "", fmt.Errorf("invalid account %q: %w", address, err)
	}
	return xdr.MarshalBase64(xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: aid},
	})
}

// EncodeAccountEntry renders a minimal account entry with the given sequence.
func EncodeAccountEntry(address string, seq int64) (string, error) {
	aid, err := xdr.AddressToAccountId(address)
	if err != nil {
		return "", fmt.Errorf("invalid account %q: %w", address, err)
	}
	return xdr.MarshalBase64(xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeAccount,
		Account: &xdr.AccountEntry{
			AccountId:  aid,
			Balance:    xdr.Int64(100_0000000),
			SeqNum:     xdr.SequenceNumber(seq),
			Thresholds: xdr.Thresholds{1, 0, 0, 0},
		},
	})
}

func recordErr(field Field, record interface{}) error {
	return fmt.Errorf("%s: unexpected record type %T", field, record)
}

func encodeReserveData(r model.ReserveData) (xdr.ScVal, error) {
	fields := map[string]xdr.ScVal{"last_time": U64(r.LastTime)}
	for name, v := range map[string]*big.Int{
		"b_rate":          r.BRate,
		"d_rate":          r.DRate,
		"b_supply":        r.BSupply,
		"d_supply":        r.DSupply,
		"ir_mod":          r.IRMod,
		"backstop_credit": r.BackstopCredit,
	} {
		val, err := I128(v)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("%s: %w", name, err)
		}
		fields[name] = val
	}
	return SymbolMap(fields), nil
}

func encodeReserveConfig(r model.ReserveConfig) (xdr.ScVal, error) {
	fields := map[string]xdr.ScVal{
		"index":      U32(r.Index),
		"decimals":   U32(r.Decimals),
		"c_factor":   U32(r.CFactor),
		"l_factor":   U32(r.LFactor),
		"util":       U32(r.Util),
		"max_util":   U32(r.MaxUtil),
		"r_base":     U32(r.RBase),
		"r_one":      U32(r.ROne),
		"r_two":      U32(r.RTwo),
		"r_three":    U32(r.RThree),
		"reactivity": U32(r.Reactivity),
		"enabled":    Bool(r.Enabled),
	}
	if r.SupplyCap != nil {
		val, err := I128(r.SupplyCap)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("supply_cap: %w", err)
		}
		fields["supply_cap"] = val
	}
	return SymbolMap(fields), nil
}

func encodePoolConfig(r model.PoolConfig) (xdr.ScVal, error) {
	oracle, err := Address(r.Oracle)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("oracle: %w", err)
	}
	fields := map[string]xdr.ScVal{
		"bstop_rate":    U32(r.BackstopRate),
		"max_positions": U32(r.MaxPositions),
		"oracle":        oracle,
		"status":        U32(r.Status),
	}
	if r.MinCollateral != nil {
		val, err := I128(r.MinCollateral)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("min_collateral: %w", err)
		}
		fields["min_collateral"] = val
	}
	return SymbolMap(fields), nil
}

func encodePositions(r model.Positions) (xdr.ScVal, error) {
	fields := make(map[string]xdr.ScVal, 3)
	for name, balances := range map[string]map[uint32]*big.Int{
		"liabilities": r.Liabilities,
		"collateral":  r.Collateral,
		"supply":      r.Supply,
	} {
		entries := make([]MapEntry, 0, len(balances))
		for idx, amt := range balances {
			val, err := I128(amt)
			if err != nil {
				return xdr.ScVal{}, fmt.Errorf("%s[%d]: %w", name, idx, err)
			}
			entries = append(entries, MapEntry{Key: U32(idx), Val: val})
		}
		fields[name] = Map(entries...)
	}
	return SymbolMap(fields), nil
}

func encodeAddresses(addrs []string) (xdr.ScVal, error) {
	items := make([]xdr.ScVal, 0, len(addrs))
	for _, a := range addrs {
		v, err := Address(a)
		if err != nil {
			return xdr.ScVal{}, err
		}
		items = append(items, v)
	}
	return Vec(items...), nil
}
