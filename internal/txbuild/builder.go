// Package txbuild turns position intents into unsigned invocations of the
// pool's submit entry point and assembles them into transactions.
package txbuild

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// SubmitFunction is the pool's variadic request entry point.
const SubmitFunction = "submit"

// MaxDecimals bounds the decimals a reserve may declare.
const MaxDecimals = 38

// Invocation is a single contract call.
type Invocation struct {
	Contract string
	Method   string
	Args     []xdr.ScVal
}

// HostFunction renders the invocation as an InvokeContract host function.
func (i Invocation) HostFunction() (xdr.HostFunction, error) {
	addr, err := ledgerkey.ScAddress(i.Contract)
	if err != nil {
		return xdr.HostFunction{}, errs.Input("contract: %v", err)
	}
	if i.Method == "" {
		return xdr.HostFunction{}, errs.Input("method is required")
	}
	return xdr.HostFunction{
		Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
		InvokeContract: &xdr.InvokeContractArgs{
			ContractAddress: addr,
			FunctionName:    xdr.ScSymbol(i.Method),
			Args:            i.Args,
		},
	}, nil
}

// UnsignedOperation is a built submit call. It carries the typed requests
// alongside the encoded arguments so callers can report what was asked.
type UnsignedOperation struct {
	Invocation
	From     string
	Pool     string
	Requests []model.PositionRequest
}

// BuildPositionChange scales amount by decimals and wraps the single request
// in a request vector.
func BuildPositionChange(from, asset string, amount decimal.Decimal, kind model.RequestType, pool string, decimals uint32) (UnsignedOperation, error) {
	if !kind.Valid() {
		return UnsignedOperation{}, errs.Input("unknown operation kind %d", uint32(kind))
	}
	if strings.TrimSpace(asset) == "" {
		return UnsignedOperation{}, errs.Input("asset is required")
	}
	scaled, err := ScaleAmount(amount, decimals)
	if err != nil {
		return UnsignedOperation{}, err
	}
	return BuildRequests(from, pool, []model.PositionRequest{{Asset: asset, Amount: scaled, Kind: kind}})
}

// BuildRequests encodes submit(from, from, from, requests). Requests are
// applied by the pool in order within one transaction.
func BuildRequests(from, pool string, requests []model.PositionRequest) (UnsignedOperation, error) {
	if len(requests) == 0 {
		return UnsignedOperation{}, errs.Input("at least one request is required")
	}
	fromVal, err := ledgerkey.Address(from)
	if err != nil {
		return UnsignedOperation{}, errs.Input("from: %v", err)
	}
	if _, err := ledgerkey.ScAddress(pool); err != nil {
		return UnsignedOperation{}, errs.Input("pool: %v", err)
	}

	items := make([]xdr.ScVal, 0, len(requests))
	for i, req := range requests {
		val, err := encodeRequest(req)
		if err != nil {
			return UnsignedOperation{}, errs.Input("request %d: %v", i, err)
		}
		items = append(items, val)
	}

	return UnsignedOperation{
		Invocation: Invocation{
			Contract: pool,
			Method:   SubmitFunction,
			Args:     []xdr.ScVal{fromVal, fromVal, fromVal, ledgerkey.Vec(items...)},
		},
		From:     from,
		Pool:     pool,
		Requests: append([]model.PositionRequest(nil), requests...),
	}, nil
}

func encodeRequest(req model.PositionRequest) (xdr.ScVal, error) {
	if !req.Kind.Valid() {
		return xdr.ScVal{}, fmt.Errorf("unknown operation kind %d", uint32(req.Kind))
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return xdr.ScVal{}, fmt.Errorf("amount must be positive")
	}
	asset, err := ledgerkey.Address(req.Asset)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("asset: %w", err)
	}
	amount, err := ledgerkey.I128(req.Amount)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return ledgerkey.SymbolMap(map[string]xdr.ScVal{
		"address":      asset,
		"amount":       amount,
		"request_type": ledgerkey.U32(uint32(req.Kind)),
	}), nil
}

// ScaleAmount converts a decimal asset amount to its integer representation,
// truncating toward zero. Anything that scales to zero or below is rejected.
func ScaleAmount(amount decimal.Decimal, decimals uint32) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, errs.Input("unsupported decimals %d", decimals)
	}
	scaled := amount.Shift(int32(decimals)).Truncate(0).BigInt()
	if scaled.Sign() <= 0 {
		return nil, errs.Input("amount %s scales to %s at %d decimals", amount.String(), scaled.String(), decimals)
	}
	return scaled, nil
}
