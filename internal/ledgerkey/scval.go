package ledgerkey

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/xdr"
)

const (
	scAddressAccount  = 0
	scAddressContract = 1
)

// ScAddress parses a G... account or C... contract strkey.
func ScAddress(address string) (xdr.ScAddress, error) {
	var raw []byte
	switch {
	case len(address) > 0 && address[0] == 'G':
		id, err := strkey.Decode(strkey.VersionByteAccountID, address)
		if err != nil {
			return xdr.ScAddress{}, fmt.Errorf("invalid account address %q: %w", address, err)
		}
		raw = make([]byte, 8, 8+len(id))
		binary.BigEndian.PutUint32(raw[0:4], scAddressAccount)
		// Public key type ed25519 is 0.
		raw = append(raw, id...)
	case len(address) > 0 && address[0] == 'C':
		id, err := strkey.Decode(strkey.VersionByteContract, address)
		if err != nil {
			return xdr.ScAddress{}, fmt.Errorf("invalid contract address %q: %w", address, err)
		}
		raw = make([]byte, 4, 4+len(id))
		binary.BigEndian.PutUint32(raw[0:4], scAddressContract)
		raw = append(raw, id...)
	default:
		return xdr.ScAddress{}, fmt.Errorf("unsupported address %q", address)
	}

	var out xdr.ScAddress
	if err := xdr.SafeUnmarshal(raw, &out); err != nil {
		return xdr.ScAddress{}, fmt.Errorf("address %q: %w", address, err)
	}
	return out, nil
}

// AddressString renders an ScAddress back to its strkey form.
func AddressString(addr xdr.ScAddress) (string, error) {
	raw, err := addr.MarshalBinary()
	if err != nil {
		return "", err
	}
	if len(raw) < 4 {
		return "", fmt.Errorf("short address encoding")
	}
	switch binary.BigEndian.Uint32(raw[0:4]) {
	case scAddressAccount:
		if len(raw) != 40 {
			return "", fmt.Errorf("unexpected account address length %d", len(raw))
		}
		return strkey.Encode(strkey.VersionByteAccountID, raw[8:40])
	case scAddressContract:
		if len(raw) != 36 {
			return "", fmt.Errorf("unexpected contract address length %d", len(raw))
		}
		return strkey.Encode(strkey.VersionByteContract, raw[4:36])
	default:
		return "", fmt.Errorf("unsupported address type %d", binary.BigEndian.Uint32(raw[0:4]))
	}
}

// Address wraps a strkey address as an ScVal.
func Address(address string) (xdr.ScVal, error) {
	addr, err := ScAddress(address)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}, nil
}

func Symbol(name string) xdr.ScVal {
	sym := xdr.ScSymbol(name)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func String(s string) xdr.ScVal {
	str := xdr.ScString(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &str}
}

func U32(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}

func U64(v uint64) xdr.ScVal {
	u := xdr.Uint64(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &u}
}

func Bool(v bool) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &v}
}

func Vec(items ...xdr.ScVal) xdr.ScVal {
	vec := xdr.ScVec(items)
	pv := &vec
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &pv}
}

// MapEntry is a key/value pair for Map.
type MapEntry struct {
	Key xdr.ScVal
	Val xdr.ScVal
}

// Map builds an ScMap sorted by key. Keys must all be symbols or all be u32.
func Map(entries ...MapEntry) xdr.ScVal {
	sorted := append([]MapEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return keyLess(sorted[i].Key, sorted[j].Key) })
	m := make(xdr.ScMap, 0, len(sorted))
	for _, e := range sorted {
		m = append(m, xdr.ScMapEntry{Key: e.Key, Val: e.Val})
	}
	pm := &m
	return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &pm}
}

// SymbolMap is Map with symbol keys.
func SymbolMap(fields map[string]xdr.ScVal) xdr.ScVal {
	entries := make([]MapEntry, 0, len(fields))
	for k, v := range fields {
		entries = append(entries, MapEntry{Key: Symbol(k), Val: v})
	}
	return Map(entries...)
}

func keyLess(a, b xdr.ScVal) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	switch a.Type {
	case xdr.ScValTypeScvSymbol:
		return string(*a.Sym) < string(*b.Sym)
	case xdr.ScValTypeScvU32:
		return *a.U32 < *b.U32
	}
	return false
}

var (
	two64     = new(big.Int).Lsh(big.NewInt(1), 64)
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
	maxI128   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128   = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	lowMask64 = new(big.Int).Sub(two64, big.NewInt(1))
)

// I128 encodes v as a signed 128-bit integer.
func I128(v *big.Int) (xdr.ScVal, error) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Cmp(maxI128) > 0 || v.Cmp(minI128) < 0 {
		return xdr.ScVal{}, fmt.Errorf("value %s overflows i128", v)
	}
	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, two128)
	}
	lo := new(big.Int).And(u, lowMask64).Uint64()
	hi := new(big.Int).Rsh(u, 64).Uint64()
	parts := xdr.Int128Parts{Hi: xdr.Int64(int64(hi)), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
}

// MustI128 is I128 for values known to fit.
func MustI128(v *big.Int) xdr.ScVal {
	out, err := I128(v)
	if err != nil {
		panic(err)
	}
	return out
}

// AsI128 decodes an i128 ScVal.
func AsI128(v xdr.ScVal) (*big.Int, error) {
	if v.Type != xdr.ScValTypeScvI128 || v.I128 == nil {
		return nil, shapeErr("i128", v)
	}
	hi := big.NewInt(int64(v.I128.Hi))
	out := new(big.Int).Mul(hi, two64)
	return out.Add(out, new(big.Int).SetUint64(uint64(v.I128.Lo))), nil
}

func AsU32(v xdr.ScVal) (uint32, error) {
	if v.Type != xdr.ScValTypeScvU32 || v.U32 == nil {
		return 0, shapeErr("u32", v)
	}
	return uint32(*v.U32), nil
}

func AsU64(v xdr.ScVal) (uint64, error) {
	if v.Type != xdr.ScValTypeScvU64 || v.U64 == nil {
		return 0, shapeErr("u64", v)
	}
	return uint64(*v.U64), nil
}

func AsBool(v xdr.ScVal) (bool, error) {
	if v.Type != xdr.ScValTypeScvBool || v.B == nil {
		return false, shapeErr("bool", v)
	}
	return *v.B, nil
}

// AsText accepts a string or a symbol.
func AsText(v xdr.ScVal) (string, error) {
	switch {
	case v.Type == xdr.ScValTypeScvString && v.Str != nil:
		return string(*v.Str), nil
	case v.Type == xdr.ScValTypeScvSymbol && v.Sym != nil:
		return string(*v.Sym), nil
	}
	return "", shapeErr("string", v)
}

func AsAddress(v xdr.ScVal) (string, error) {
	if v.Type != xdr.ScValTypeScvAddress || v.Address == nil {
		return "", shapeErr("address", v)
	}
	return AddressString(*v.Address)
}

func AsVec(v xdr.ScVal) ([]xdr.ScVal, error) {
	if v.Type != xdr.ScValTypeScvVec || v.Vec == nil || *v.Vec == nil {
		return nil, shapeErr("vec", v)
	}
	return []xdr.ScVal(**v.Vec), nil
}

func AsMap(v xdr.ScVal) ([]xdr.ScMapEntry, error) {
	if v.Type != xdr.ScValTypeScvMap || v.Map == nil || *v.Map == nil {
		return nil, shapeErr("map", v)
	}
	return []xdr.ScMapEntry(**v.Map), nil
}

// AsSymbolMap indexes a symbol-keyed map by name.
func AsSymbolMap(v xdr.ScVal) (map[string]xdr.ScVal, error) {
	entries, err := AsMap(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]xdr.ScVal, len(entries))
	for _, e := range entries {
		if e.Key.Type != xdr.ScValTypeScvSymbol || e.Key.Sym == nil {
			return nil, shapeErr("symbol key", e.Key)
		}
		out[string(*e.Key.Sym)] = e.Val
	}
	return out, nil
}

func shapeErr(want string, got xdr.ScVal) error {
	return fmt.Errorf("%w: want %s, got %s", ErrUnknownShape, want, got.Type.String())
}
