package pool

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/xdr"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/soroban"
	"github.com/yusefmosiah/tuxedo-sub004/internal/txbuild"
)

// Read-only getters used when a field cannot be read from the ledger directly.
var getters = map[ledgerkey.Field]string{
	ledgerkey.ReserveData:        "get_reserve",
	ledgerkey.ReserveConfig:      "get_reserve",
	ledgerkey.ReserveList:        "get_reserve_list",
	ledgerkey.PoolConfig:         "get_config",
	ledgerkey.PoolName:           "name",
	ledgerkey.UserPositions:      "get_positions",
	ledgerkey.BackstopRewardZone: "reward_zone",
}

func (r *Reader) fallback(ctx context.Context, pending []int, results []Result) {
	if r.getter == nil {
		return
	}
	reserves := make(map[LogicalKey]reserveCall)
	for _, i := range pending {
		direct := results[i].Err
		if !needsFallback(direct) {
			continue
		}
		key := results[i].Key
		rec, err := r.simulateRead(ctx, key, reserves)
		if err != nil {
			r.logger.Warn("simulated read failed", zap.String("key", key.String()), zap.Error(err))
			if direct == errDirectDisabled {
				results[i].Err = err
			}
			continue
		}
		results[i] = Result{Key: key, Record: rec, Provenance: model.ProvenanceSimulation}
	}
}

type reserveCall struct {
	reserve model.Reserve
	err     error
}

func (r *Reader) simulateRead(ctx context.Context, key LogicalKey, reserves map[LogicalKey]reserveCall) (interface{}, error) {
	method, ok := getters[key.Field]
	if !ok {
		return nil, fmt.Errorf("no getter for %s", key.Field)
	}

	switch key.Field {
	case ledgerkey.ReserveData, ledgerkey.ReserveConfig:
		// Both fields come from the same get_reserve call.
		rk := LogicalKey{Contract: key.Contract, Arg: key.Arg}
		call, seen := reserves[rk]
		if !seen {
			call.reserve, call.err = r.fetchReserve(ctx, key.Contract, key.Arg)
			reserves[rk] = call
		}
		if call.err != nil {
			return nil, r.notFound(key, call.err)
		}
		if key.Field == ledgerkey.ReserveData {
			return call.reserve.Data, nil
		}
		return call.reserve.Config, nil
	}

	var args []xdr.ScVal
	if key.Arg != "" {
		arg, err := ledgerkey.Address(key.Arg)
		if err != nil {
			return nil, errs.Input("%s: %v", key, err)
		}
		args = append(args, arg)
	}
	val, err := r.getter.Call(ctx, key.Contract, method, args...)
	if err != nil {
		return nil, r.notFound(key, err)
	}
	rec, err := ledgerkey.DecodeScVal(key.Field, val)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecode, err, "%s via %s", key, method).WithReason(errs.ReasonUnknownShape)
	}
	return rec, nil
}

// notFound maps a getter failure that reports a missing entry to NotFound.
// Any other failure is returned unchanged.
func (r *Reader) notFound(key LogicalKey, err error) error {
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindSimulation {
		return err
	}
	msg := e.Error()
	if errs.MissingStorage(msg) {
		return errs.Wrap(errs.KindNotFound, err, "%s", key)
	}
	for _, code := range errs.ContractCodes(msg) {
		if r.missing[code] {
			return errs.Wrap(errs.KindNotFound, err, "%s", key)
		}
	}
	return err
}

func (r *Reader) fetchReserve(ctx context.Context, pool, asset string) (model.Reserve, error) {
	arg, err := ledgerkey.Address(asset)
	if err != nil {
		return model.Reserve{}, errs.Input("asset: %v", err)
	}
	val, err := r.getter.Call(ctx, pool, "get_reserve", arg)
	if err != nil {
		return model.Reserve{}, err
	}
	reserve, err := ledgerkey.DecodeReserve(val)
	if err != nil {
		return model.Reserve{}, errs.Wrap(errs.KindDecode, err, "get_reserve %s", asset).WithReason(errs.ReasonUnknownShape)
	}
	return reserve, nil
}

// Simulator is the simulate half of the RPC client.
type Simulator interface {
	SimulateTransaction(ctx context.Context, envelope string) (soroban.SimulateResult, error)
}

// DefaultSimulationSource is the all-zero account, used as transaction source
// for getter simulations when none is configured. Simulation does not check
// the source's signature or sequence.
const DefaultSimulationSource = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"

// ContractCaller runs read-only contract calls through simulateTransaction.
type ContractCaller struct {
	sim    Simulator
	source string
}

func NewContractCaller(sim Simulator, source string) *ContractCaller {
	if source == "" {
		source = DefaultSimulationSource
	}
	return &ContractCaller{sim: sim, source: source}
}

// Call simulates contract.method(args) and returns its result value.
func (c *ContractCaller) Call(ctx context.Context, contract, method string, args ...xdr.ScVal) (xdr.ScVal, error) {
	env, err := txbuild.Envelope(c.source, 0, txbuild.Invocation{Contract: contract, Method: method, Args: args}, nil)
	if err != nil {
		return xdr.ScVal{}, err
	}
	res, err := c.sim.SimulateTransaction(ctx, env)
	if err != nil {
		return xdr.ScVal{}, err
	}
	if res.Error != "" {
		return xdr.ScVal{}, errs.New(errs.KindSimulation, "%s.%s: %s", contract, method, res.Error)
	}
	if len(res.Results) == 0 {
		return xdr.ScVal{}, errs.New(errs.KindDecode, "%s.%s: simulation returned no result", contract, method)
	}
	var val xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(res.Results[0].XDR, &val); err != nil {
		return xdr.ScVal{}, errs.Wrap(errs.KindDecode, err, "%s.%s result", contract, method)
	}
	return val, nil
}
