// Package engine composes pool reads, yield math and the submitter into the
// operations external callers use.
package engine

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yusefmosiah/tuxedo-sub004/internal/config"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/pool"
	"github.com/yusefmosiah/tuxedo-sub004/internal/submit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/txbuild"
	"github.com/yusefmosiah/tuxedo-sub004/internal/yield"
)

// Symbols resolves display symbols of token contracts.
type Symbols interface {
	Symbol(ctx context.Context, address string) string
}

// Accounts looks up vault accounts without touching key material.
type Accounts interface {
	Account(ctx context.Context, userID, accountID string) (model.AccountSummary, error)
}

// Submitter runs operations to a receipt.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (model.TransactionReceipt, error)
	Status(ctx context.Context, hash string) (model.TransactionReceipt, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Reader    StateReader
	Symbols   Symbols
	Accounts  Accounts
	Submitter Submitter
	Logger    *zap.Logger
}

// Engine is stateless apart from its collaborators and safe for concurrent use.
type Engine struct {
	network  config.Network
	deps     Deps
	registry *Registry
	scale    int64
	logger   *zap.Logger
}

// symbolLookups bounds concurrent token symbol lookups.
const symbolLookups = 4

// defaultDecimals is assumed when a reserve config cannot be read for display.
const defaultDecimals = 7

func New(network config.Network, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scale := network.RateScale
	if scale <= 0 {
		scale = yield.DefaultScale
	}
	return &Engine{
		network:  network,
		deps:     deps,
		registry: NewRegistry(deps.Reader, logger),
		scale:    scale,
		logger:   logger,
	}
}

// Pools discovers the pools of the engine's network.
func (e *Engine) Pools(ctx context.Context) ([]model.PoolSummary, error) {
	return e.registry.DiscoverPools(ctx, e.network)
}

// GetYield computes yield metrics for one reserve.
func (e *Engine) GetYield(ctx context.Context, poolAddr, asset string) (model.YieldMetrics, error) {
	assetAddr, err := e.resolveAsset(asset)
	if err != nil {
		return model.YieldMetrics{}, err
	}
	if strings.TrimSpace(poolAddr) == "" {
		return model.YieldMetrics{}, errs.Input("pool is required")
	}
	res := e.deps.Reader.ReadMany(ctx, []pool.LogicalKey{{Contract: poolAddr, Field: ledgerkey.ReserveData, Arg: assetAddr}})[0]
	if res.Err != nil {
		return model.YieldMetrics{}, res.Err
	}
	data, ok := res.Record.(model.ReserveData)
	if !ok {
		return model.YieldMetrics{}, errs.New(errs.KindDecode, "reserve data for %s has type %T", assetAddr, res.Record)
	}
	return yield.Compute(data, e.scale), nil
}

// FindBestYield ranks the supply APY of asset across every known pool, keeping
// those at or above minAPY. Pools that do not list the asset are skipped.
func (e *Engine) FindBestYield(ctx context.Context, asset string, minAPY float64) ([]model.Opportunity, error) {
	assetAddr, err := e.resolveAsset(asset)
	if err != nil {
		return nil, err
	}
	pools, err := e.Pools(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]pool.LogicalKey, 0, 2*len(pools))
	for _, p := range pools {
		keys = append(keys,
			pool.LogicalKey{Contract: p.Address, Field: ledgerkey.ReserveData, Arg: assetAddr},
			pool.LogicalKey{Contract: p.Address, Field: ledgerkey.ReserveConfig, Arg: assetAddr},
		)
	}
	results := e.deps.Reader.ReadMany(ctx, keys)

	symbol := e.symbol(ctx, assetAddr)
	var (
		out      []model.Opportunity
		firstErr error
		listed   int
	)
	for i, p := range pools {
		dataRes, cfgRes := results[2*i], results[2*i+1]
		if dataRes.Err != nil {
			if !errors.Is(dataRes.Err, errs.ErrNotFound) {
				e.logger.Warn("reserve read failed", zap.String("pool", p.Address), zap.String("asset", assetAddr), zap.Error(dataRes.Err))
				if firstErr == nil {
					firstErr = dataRes.Err
				}
			}
			continue
		}
		data, ok := dataRes.Record.(model.ReserveData)
		if !ok {
			continue
		}
		listed++

		decimals := uint32(defaultDecimals)
		if cfg, ok := cfgRes.Record.(model.ReserveConfig); ok && cfgRes.Err == nil {
			if !cfg.Enabled {
				continue
			}
			decimals = cfg.Decimals
		}

		m := yield.Compute(data, e.scale)
		if m.SupplyAPY < minAPY {
			continue
		}
		out = append(out, model.Opportunity{
			Pool:               p.Address,
			PoolName:           p.Name,
			Asset:              symbol,
			AssetAddress:       assetAddr,
			APY:                m.SupplyAPY,
			AvailableLiquidity: yield.ToDecimal(m.AvailableLiquidity, decimals),
			Utilization:        m.Utilization,
		})
	}
	if listed == 0 && firstErr != nil {
		return nil, firstErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].APY != out[j].APY {
			return out[i].APY > out[j].APY
		}
		return out[i].AvailableLiquidity.GreaterThan(out[j].AvailableLiquidity)
	})
	return out, nil
}

// ChangePosition submits one position change and waits for its receipt.
func (e *Engine) ChangePosition(ctx context.Context, userID, accountID, poolAddr, asset string, amount decimal.Decimal, kind model.RequestType) (model.TransactionReceipt, error) {
	return e.changePosition(ctx, userID, accountID, poolAddr, asset, amount, kind, false)
}

// SimulatePosition runs ChangePosition up to simulation and reports the
// projected outcome without signing.
func (e *Engine) SimulatePosition(ctx context.Context, userID, accountID, poolAddr, asset string, amount decimal.Decimal, kind model.RequestType) (model.TransactionReceipt, error) {
	return e.changePosition(ctx, userID, accountID, poolAddr, asset, amount, kind, true)
}

func (e *Engine) changePosition(ctx context.Context, userID, accountID, poolAddr, asset string, amount decimal.Decimal, kind model.RequestType, dryRun bool) (model.TransactionReceipt, error) {
	if strings.TrimSpace(userID) == "" {
		return model.TransactionReceipt{}, errs.Input("user id is required")
	}
	if !kind.Valid() {
		return model.TransactionReceipt{}, errs.Input("unknown request type %d", uint32(kind))
	}
	if strings.TrimSpace(poolAddr) == "" {
		return model.TransactionReceipt{}, errs.Input("pool is required")
	}
	assetAddr, err := e.resolveAsset(asset)
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	if !amount.IsPositive() {
		return model.TransactionReceipt{}, errs.Input("amount must be positive, got %s", amount)
	}

	// Ownership is settled before any network traffic. The submitter checks
	// again when it takes the signer.
	if _, err := e.deps.Accounts.Account(ctx, userID, accountID); err != nil {
		if ee, ok := errs.As(err); ok && ee.Kind == errs.KindPermission {
			return model.TransactionReceipt{Outcome: model.OutcomeRejected, Error: ee}, nil
		}
		return model.TransactionReceipt{}, err
	}

	res := e.deps.Reader.ReadMany(ctx, []pool.LogicalKey{{Contract: poolAddr, Field: ledgerkey.ReserveConfig, Arg: assetAddr}})[0]
	if res.Err != nil {
		return model.TransactionReceipt{}, res.Err
	}
	cfg, ok := res.Record.(model.ReserveConfig)
	if !ok {
		return model.TransactionReceipt{}, errs.New(errs.KindDecode, "reserve config for %s has type %T", assetAddr, res.Record)
	}
	if _, err := txbuild.ScaleAmount(amount, cfg.Decimals); err != nil {
		return model.TransactionReceipt{}, err
	}

	e.logger.Info("position change",
		zap.String("user", userID),
		zap.String("account", accountID),
		zap.String("pool", poolAddr),
		zap.String("asset", assetAddr),
		zap.String("amount", amount.String()),
		zap.Stringer("kind", kind),
		zap.Bool("dry_run", dryRun),
	)
	return e.deps.Submitter.Submit(ctx, submit.Request{
		UserID:    userID,
		AccountID: accountID,
		DryRun:    dryRun,
		Build: func(source string) (txbuild.UnsignedOperation, error) {
			return txbuild.BuildPositionChange(source, assetAddr, amount, kind, poolAddr, cfg.Decimals)
		},
	})
}

// GetPositions reports the account's balances in poolAddr in asset units.
// An account that never used the pool has an empty snapshot.
func (e *Engine) GetPositions(ctx context.Context, userID, accountID, poolAddr string) (model.PositionSnapshot, error) {
	if strings.TrimSpace(poolAddr) == "" {
		return model.PositionSnapshot{}, errs.Input("pool is required")
	}
	acct, err := e.deps.Accounts.Account(ctx, userID, accountID)
	if err != nil {
		return model.PositionSnapshot{}, err
	}

	results := e.deps.Reader.ReadMany(ctx, []pool.LogicalKey{
		{Contract: poolAddr, Field: ledgerkey.ReserveList},
		{Contract: poolAddr, Field: ledgerkey.UserPositions, Arg: acct.PublicKey},
		{Contract: poolAddr, Field: ledgerkey.PoolName},
	})
	listRes, posRes, nameRes := results[0], results[1], results[2]
	if listRes.Err != nil {
		return model.PositionSnapshot{}, listRes.Err
	}
	list, _ := listRes.Record.(model.ReserveList)

	snap := model.PositionSnapshot{
		Pool:       poolAddr,
		Account:    acct.PublicKey,
		Positions:  []model.AssetPosition{},
		Provenance: listRes.Provenance,
	}
	if name, ok := nameRes.Record.(model.PoolName); ok && nameRes.Err == nil {
		snap.PoolName = string(name)
	}
	if posRes.Err != nil {
		if errors.Is(posRes.Err, errs.ErrNotFound) {
			return snap, nil
		}
		return model.PositionSnapshot{}, posRes.Err
	}
	positions, _ := posRes.Record.(model.Positions)
	snap.Provenance = posRes.Provenance

	indexes := positionIndexes(positions)
	assets := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if int(idx) >= len(list) {
			return model.PositionSnapshot{}, errs.New(errs.KindDecode, "position references reserve %d but pool lists %d", idx, len(list))
		}
		assets = append(assets, list[idx])
	}

	cfgKeys := make([]pool.LogicalKey, len(assets))
	for i, addr := range assets {
		cfgKeys[i] = pool.LogicalKey{Contract: poolAddr, Field: ledgerkey.ReserveConfig, Arg: addr}
	}
	cfgs := e.deps.Reader.ReadMany(ctx, cfgKeys)
	symbols := e.symbols(ctx, assets)

	for i, idx := range indexes {
		decimals := uint32(defaultDecimals)
		if cfg, ok := cfgs[i].Record.(model.ReserveConfig); ok && cfgs[i].Err == nil {
			decimals = cfg.Decimals
		} else {
			e.logger.Warn("reserve config unavailable, assuming default decimals", zap.String("asset", assets[i]), zap.Error(cfgs[i].Err))
		}
		collateral := yield.ToDecimal(positions.Collateral[idx], decimals)
		snap.Positions = append(snap.Positions, model.AssetPosition{
			Asset:        assets[i],
			Symbol:       symbols[assets[i]],
			Supplied:     yield.ToDecimal(positions.Supply[idx], decimals),
			Collateral:   collateral,
			Borrowed:     yield.ToDecimal(positions.Liabilities[idx], decimals),
			IsCollateral: collateral.IsPositive(),
		})
	}
	return snap, nil
}

// TransactionStatus resolves a receipt left ambiguous by ChangePosition.
func (e *Engine) TransactionStatus(ctx context.Context, hash string) (model.TransactionReceipt, error) {
	return e.deps.Submitter.Status(ctx, hash)
}

func (e *Engine) resolveAsset(asset string) (string, error) {
	if strings.TrimSpace(asset) == "" {
		return "", errs.Input("asset is required")
	}
	addr, ok := e.network.AssetAddress(asset)
	if !ok {
		return "", errs.Input("unknown asset %q on %s", asset, e.network.Name)
	}
	return addr, nil
}

func (e *Engine) symbol(ctx context.Context, address string) string {
	if symbol, ok := e.network.AssetSymbol(address); ok {
		return symbol
	}
	if e.deps.Symbols == nil {
		return shortAddress(address)
	}
	return e.deps.Symbols.Symbol(ctx, address)
}

// symbols resolves many addresses with bounded concurrency. Lookups never
// fail; unknown tokens get a shortened address.
func (e *Engine) symbols(ctx context.Context, addresses []string) map[string]string {
	out := make(map[string]string, len(addresses))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolLookups)
	for _, addr := range addresses {
		g.Go(func() error {
			symbol := e.symbol(gctx, addr)
			mu.Lock()
			out[addr] = symbol
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func positionIndexes(p model.Positions) []uint32 {
	seen := make(map[uint32]bool)
	for _, m := range []map[uint32]*big.Int{p.Supply, p.Collateral, p.Liabilities} {
		for idx := range m {
			seen[idx] = true
		}
	}
	out := make([]uint32, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
