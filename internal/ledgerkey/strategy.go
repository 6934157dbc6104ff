package ledgerkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/xdr"
)

// Strategy names one storage-key shape.
type Strategy string

const (
	// StrategySymbol keys the entry by Symbol(name).
	StrategySymbol Strategy = "symbol"
	// StrategyEnum is the contracttype enum shape: Vec[Symbol(name), args...].
	StrategyEnum Strategy = "enum"
	// StrategyTuple wraps the arguments: Vec[Symbol(name), Vec[args...]].
	StrategyTuple Strategy = "tuple"
	// StrategyInstance tags keys that address contract instance storage.
	StrategyInstance Strategy = "instance"
)

var (
	// ErrShapeMismatch is returned when a strategy cannot express a field.
	ErrShapeMismatch = errors.New("key strategy cannot shape field")
	// ErrUnknownShape is returned when a stored value does not have the
	// layout the field expects.
	ErrUnknownShape = errors.New("unknown value shape")
)

// DefaultStrategies is the order strategies are tried in when none is configured.
var DefaultStrategies = []Strategy{StrategyEnum, StrategyTuple, StrategySymbol}

// TaggedKey is one encoded ledger key and the strategy that produced it.
type TaggedKey struct {
	Strategy Strategy
	Key      string
}

// Codec maps logical fields to ledger keys and decodes stored values. It is
// immutable after construction and safe for concurrent use.
type Codec struct {
	strategies []Strategy
	symbols    map[Field]string
}

// NewCodec builds a codec from an ordered strategy list and per-field symbol
// overrides keyed by field name.
func NewCodec(strategies []string, symbols map[string]string) (*Codec, error) {
	c := &Codec{symbols: make(map[Field]string)}
	seen := make(map[Strategy]bool)
	for _, raw := range strategies {
		s := Strategy(strings.ToLower(strings.TrimSpace(raw)))
		switch s {
		case StrategySymbol, StrategyEnum, StrategyTuple:
		default:
			return nil, fmt.Errorf("unknown key strategy: %q", raw)
		}
		if !seen[s] {
			seen[s] = true
			c.strategies = append(c.strategies, s)
		}
	}
	if len(c.strategies) == 0 {
		c.strategies = append(c.strategies, DefaultStrategies...)
	}
	for name, sym := range symbols {
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(sym) == "" {
			return nil, fmt.Errorf("empty symbol for field %s", f)
		}
		c.symbols[f] = strings.TrimSpace(sym)
	}
	return c, nil
}

// Strategies returns the configured strategy order.
func (c *Codec) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Symbol is the storage symbol of f after overrides.
func (c *Codec) Symbol(f Field) string {
	if sym, ok := c.symbols[f]; ok {
		return sym
	}
	return f.DefaultSymbol()
}

// EncodeKey returns the base64 XDR LedgerKey for field under one strategy.
// Instance fields ignore the strategy and address the instance entry.
func (c *Codec) EncodeKey(contract string, field Field, args []string, s Strategy) (string, error) {
	key, err := c.ledgerKey(contract, field, args, s)
	if err != nil {
		return "", err
	}
	return xdr.MarshalBase64(key)
}

// Keys encodes field under every configured strategy that can shape it, in
// configured order.
func (c *Codec) Keys(contract string, field Field, args []string) ([]TaggedKey, error) {
	if _, ok := fieldDefs[field]; !ok {
		return nil, fmt.Errorf("unknown field %d", int(field))
	}
	if field.Instance() {
		key, err := c.EncodeKey(contract, field, args, StrategyInstance)
		if err != nil {
			return nil, err
		}
		return []TaggedKey{{Strategy: StrategyInstance, Key: key}}, nil
	}

	out := make([]TaggedKey, 0, len(c.strategies))
	for _, s := range c.strategies {
		key, err := c.EncodeKey(contract, field, args, s)
		if errors.Is(err, ErrShapeMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, TaggedKey{Strategy: s, Key: key})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no configured strategy applies: %w", field, ErrShapeMismatch)
	}
	return out, nil
}

func (c *Codec) ledgerKey(contract string, field Field, args []string, s Strategy) (xdr.LedgerKey, error) {
	if _, ok := fieldDefs[field]; !ok {
		return xdr.LedgerKey{}, fmt.Errorf("unknown field %d", int(field))
	}
	if len(args) != field.Arity() {
		return xdr.LedgerKey{}, fmt.Errorf("%s takes %d argument(s), got %d", field, field.Arity(), len(args))
	}
	addr, err := ScAddress(contract)
	if err != nil {
		return xdr.LedgerKey{}, fmt.Errorf("contract: %w", err)
	}

	var keyVal xdr.ScVal
	if field.Instance() {
		keyVal = xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance}
	} else {
		keyVal, err = c.storageKey(field, args, s)
		if err != nil {
			return xdr.LedgerKey{}, err
		}
	}

	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   addr,
			Key:        keyVal,
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	}, nil
}

// storageKey builds the ScVal key of a persistent field.
func (c *Codec) storageKey(field Field, args []string, s Strategy) (xdr.ScVal, error) {
	name := Symbol(c.Symbol(field))
	argVals := make([]xdr.ScVal, 0, len(args))
	for _, a := range args {
		v, err := Address(a)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("%s argument: %w", field, err)
		}
		argVals = append(argVals, v)
	}

	switch s {
	case StrategySymbol:
		if len(argVals) > 0 {
			return xdr.ScVal{}, fmt.Errorf("%s under %s: %w", field, s, ErrShapeMismatch)
		}
		return name, nil
	case StrategyEnum:
		return Vec(append([]xdr.ScVal{name}, argVals...)...), nil
	case StrategyTuple:
		if len(argVals) == 0 {
			return xdr.ScVal{}, fmt.Errorf("%s under %s: %w", field, s, ErrShapeMismatch)
		}
		return Vec(name, Vec(argVals...)), nil
	default:
		return xdr.ScVal{}, fmt.Errorf("%s under %s: %w", field, s, ErrShapeMismatch)
	}
}
