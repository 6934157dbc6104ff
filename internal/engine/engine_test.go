package engine

import (
	"context"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yusefmosiah/tuxedo-sub004/internal/config"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/pool"
	"github.com/yusefmosiah/tuxedo-sub004/internal/submit"
)

const (
	testBackstop = "CBHWKF4RHIKOKSURAKXSJRIIA7RJAMJH4VHRVPYGUF4AJ5L544LYZ35X"
	testPool     = "CCQ74HNBMLYICEFUGNLM23QQJU7BKZS7CXC7OAOX4IHRT3LDINZ4V3AF"
	testUSDC     = "CCW67TSZV3SSS2HXMBQ5JFGCKJNXKZM7UQUWUZPUTHXSTZLEO7SJMI75"
	testXLM      = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"
	testUser     = "GAAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQDZ7H"
)

type fakeReader struct {
	mu      sync.Mutex
	records map[pool.LogicalKey]pool.Result
	calls   int
	keys    [][]pool.LogicalKey
}

func newFakeReader() *fakeReader {
	return &fakeReader{records: map[pool.LogicalKey]pool.Result{}}
}

func (f *fakeReader) set(key pool.LogicalKey, record interface{}) {
	f.records[key] = pool.Result{Key: key, Record: record, Provenance: model.ProvenanceDirect}
}

func (f *fakeReader) fail(key pool.LogicalKey, err error) {
	f.records[key] = pool.Result{Key: key, Err: err}
}

func (f *fakeReader) ReadMany(ctx context.Context, keys []pool.LogicalKey) []pool.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, keys)
	out := make([]pool.Result, len(keys))
	for i, k := range keys {
		if res, ok := f.records[k]; ok {
			out[i] = res
			continue
		}
		out[i] = pool.Result{Key: k, Err: errs.NotFound("%s", k)}
	}
	return out
}

type fakeAccounts struct {
	owner string
}

func (f fakeAccounts) Account(ctx context.Context, userID, accountID string) (model.AccountSummary, error) {
	if userID != f.owner {
		return model.AccountSummary{}, errs.Permission("account %s does not belong to user %s", accountID, userID)
	}
	return model.AccountSummary{ID: accountID, Chain: model.ChainStellar, PublicKey: testUser}, nil
}

type fakeSubmitter struct {
	requests []submit.Request
	status   model.TransactionReceipt
}

func (f *fakeSubmitter) Submit(ctx context.Context, req submit.Request) (model.TransactionReceipt, error) {
	f.requests = append(f.requests, req)
	return model.TransactionReceipt{Outcome: model.OutcomeSuccess, Hash: "abc"}, nil
}

func (f *fakeSubmitter) Status(ctx context.Context, hash string) (model.TransactionReceipt, error) {
	return f.status, nil
}

func testNetwork(pools ...string) config.Network {
	return config.Network{
		Name:      "testnet",
		Backstop:  testBackstop,
		Pools:     pools,
		Assets:    map[string]string{"USDC": testUSDC, "XLM": testXLM},
		RateScale: 10_000_000,
	}
}

// rateFor inverts the APY formula so fixtures read as percentages.
func rateFor(apy float64) *big.Int {
	r := 365 * (math.Pow(1+apy/100, 1.0/365) - 1) * 1e7
	return big.NewInt(int64(math.Round(r)))
}

func reserveData(apy float64, supplied, borrowed int64) model.ReserveData {
	return model.ReserveData{
		BRate:          rateFor(apy),
		DRate:          rateFor(apy * 1.5),
		BSupply:        big.NewInt(supplied),
		DSupply:        big.NewInt(borrowed),
		IRMod:          big.NewInt(10_000_000),
		BackstopCredit: big.NewInt(0),
	}
}

func reserveConfig(index, decimals uint32) model.ReserveConfig {
	return model.ReserveConfig{Index: index, Decimals: decimals, Enabled: true}
}

func TestFindBestYieldRanksAndFilters(t *testing.T) {
	reader := newFakeReader()
	pools := []string{"POOL_A", "POOL_B", "POOL_C", "POOL_D"}
	reader.fail(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, errs.Transport(nil, "down"))
	apys := map[string]float64{"POOL_A": 3.0, "POOL_B": 8.5, "POOL_C": 12.1}
	for p, apy := range apys {
		reader.set(pool.LogicalKey{Contract: p, Field: ledgerkey.ReserveData, Arg: testUSDC}, reserveData(apy, 5_000_000_000, 1_000_000_000))
		reader.set(pool.LogicalKey{Contract: p, Field: ledgerkey.ReserveConfig, Arg: testUSDC}, reserveConfig(0, 7))
	}
	// POOL_D does not list USDC.

	e := New(testNetwork(pools...), Deps{Reader: reader})
	out, err := e.FindBestYield(context.Background(), "usdc", 5.0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.InDelta(t, 12.1, out[0].APY, 0.001)
	require.InDelta(t, 8.5, out[1].APY, 0.001)
	require.Equal(t, "POOL_C", out[0].Pool)
	require.Equal(t, "USDC", out[0].Asset)
	require.True(t, out[0].AvailableLiquidity.Equal(decimal.NewFromInt(400)))
	require.InDelta(t, 0.2, out[0].Utilization, 1e-9)
}

func TestFindBestYieldTiesBrokenByLiquidity(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, model.RewardZone{"POOL_A", "POOL_B"})
	reader.set(pool.LogicalKey{Contract: "POOL_A", Field: ledgerkey.ReserveData, Arg: testXLM}, reserveData(6, 100, 50))
	reader.set(pool.LogicalKey{Contract: "POOL_B", Field: ledgerkey.ReserveData, Arg: testXLM}, reserveData(6, 1000, 50))

	e := New(testNetwork(), Deps{Reader: reader})
	out, err := e.FindBestYield(context.Background(), "XLM", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "POOL_B", out[0].Pool)
	require.Equal(t, "POOL_A", out[1].Pool)
}

func TestFindBestYieldUsesOneBatchedRead(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, model.RewardZone{"POOL_A", "POOL_B", "POOL_C"})
	e := New(testNetwork(), Deps{Reader: reader})

	_, err := e.FindBestYield(context.Background(), "XLM", 0)
	require.NoError(t, err)
	// reward zone, pool names/configs, reserves
	require.Equal(t, 3, reader.calls)
	require.Len(t, reader.keys[2], 6)
}

func TestFindBestYieldAllReadsFailed(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, model.RewardZone{"POOL_A"})
	reader.fail(pool.LogicalKey{Contract: "POOL_A", Field: ledgerkey.ReserveData, Arg: testXLM}, errs.Transport(nil, "reset"))

	e := New(testNetwork(), Deps{Reader: reader})
	_, err := e.FindBestYield(context.Background(), "XLM", 0)
	require.ErrorIs(t, err, errs.ErrTransport)
}

func TestGetYield(t *testing.T) {
	reader := newFakeReader()
	data := reserveData(0, 0, 0)
	data.BRate = big.NewInt(912500)
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveData, Arg: testXLM}, data)

	e := New(testNetwork(testPool), Deps{Reader: reader})
	m, err := e.GetYield(context.Background(), testPool, "XLM")
	require.NoError(t, err)
	require.InDelta(t, 9.55, m.SupplyAPY, 0.01)
	require.Equal(t, 0.0, m.Utilization)

	_, err = e.GetYield(context.Background(), testPool, "USDC")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.GetYield(context.Background(), testPool, "DOGE")
	require.ErrorIs(t, err, errs.ErrInput)
}

func TestChangePositionPermissionDeniedBeforeReads(t *testing.T) {
	reader := newFakeReader()
	sub := &fakeSubmitter{}
	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "bob"}, Submitter: sub})

	receipt, err := e.ChangePosition(context.Background(), "alice", "acct-1", testPool, "XLM", decimal.NewFromInt(5), model.Supply)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeRejected, receipt.Outcome)
	require.Equal(t, errs.KindPermission, receipt.Error.Kind)
	require.Zero(t, reader.calls)
	require.Empty(t, sub.requests)
}

func TestChangePositionScalesWithReserveDecimals(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveConfig, Arg: testUSDC}, reserveConfig(1, 6))
	sub := &fakeSubmitter{}
	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "alice"}, Submitter: sub})

	receipt, err := e.ChangePosition(context.Background(), "alice", "acct-1", testPool, "USDC", decimal.RequireFromString("12.5"), model.Supply)
	require.NoError(t, err)
	require.True(t, receipt.OK())
	require.Len(t, sub.requests, 1)

	req := sub.requests[0]
	require.Equal(t, "alice", req.UserID)
	require.False(t, req.DryRun)
	op, err := req.Build(testUser)
	require.NoError(t, err)
	require.Equal(t, testPool, op.Pool)
	require.Len(t, op.Requests, 1)
	require.Zero(t, op.Requests[0].Amount.Cmp(big.NewInt(12_500_000)))
	require.Equal(t, model.Supply, op.Requests[0].Kind)
}

func TestChangePositionRejectsBadInput(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveConfig, Arg: testUSDC}, reserveConfig(1, 6))
	sub := &fakeSubmitter{}
	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "alice"}, Submitter: sub})
	ctx := context.Background()

	_, err := e.ChangePosition(ctx, "", "acct-1", testPool, "USDC", decimal.NewFromInt(1), model.Supply)
	require.ErrorIs(t, err, errs.ErrInput)

	_, err = e.ChangePosition(ctx, "alice", "acct-1", testPool, "USDC", decimal.NewFromInt(-1), model.Withdraw)
	require.ErrorIs(t, err, errs.ErrInput)

	// Scales to zero at 6 decimals.
	_, err = e.ChangePosition(ctx, "alice", "acct-1", testPool, "USDC", decimal.RequireFromString("0.0000001"), model.Supply)
	require.ErrorIs(t, err, errs.ErrInput)

	_, err = e.ChangePosition(ctx, "alice", "acct-1", testPool, "USDC", decimal.NewFromInt(1), model.RequestType(42))
	require.ErrorIs(t, err, errs.ErrInput)

	// Asset not listed in the pool.
	_, err = e.ChangePosition(ctx, "alice", "acct-1", testPool, "XLM", decimal.NewFromInt(1), model.Supply)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.Empty(t, sub.requests)
}

func TestSimulatePositionIsDryRun(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveConfig, Arg: testXLM}, reserveConfig(0, 7))
	sub := &fakeSubmitter{}
	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "alice"}, Submitter: sub})

	_, err := e.SimulatePosition(context.Background(), "alice", "acct-1", testPool, "XLM", decimal.NewFromInt(1), model.Borrow)
	require.NoError(t, err)
	require.Len(t, sub.requests, 1)
	require.True(t, sub.requests[0].DryRun)
}

func TestGetPositions(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveList}, model.ReserveList{testXLM, testUSDC})
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.PoolName}, model.PoolName("Testnet V2"))
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveConfig, Arg: testXLM}, reserveConfig(0, 7))
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveConfig, Arg: testUSDC}, reserveConfig(1, 6))
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.UserPositions, Arg: testUser}, model.Positions{
		Liabilities: map[uint32]*big.Int{1: big.NewInt(2_000_000)},
		Collateral:  map[uint32]*big.Int{0: big.NewInt(150_000_000)},
		Supply:      map[uint32]*big.Int{},
	})

	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "alice"}})
	snap, err := e.GetPositions(context.Background(), "alice", "acct-1", testPool)
	require.NoError(t, err)
	require.Equal(t, "Testnet V2", snap.PoolName)
	require.Equal(t, testUser, snap.Account)
	require.Len(t, snap.Positions, 2)

	xlm := snap.Positions[0]
	require.Equal(t, "XLM", xlm.Symbol)
	require.True(t, xlm.Collateral.Equal(decimal.NewFromInt(15)))
	require.True(t, xlm.IsCollateral)
	require.True(t, xlm.Borrowed.IsZero())

	usdc := snap.Positions[1]
	require.Equal(t, "USDC", usdc.Symbol)
	require.True(t, usdc.Borrowed.Equal(decimal.NewFromInt(2)))
	require.False(t, usdc.IsCollateral)
}

func TestGetPositionsEmptyWhenAccountNeverUsedPool(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testPool, Field: ledgerkey.ReserveList}, model.ReserveList{testXLM})

	e := New(testNetwork(testPool), Deps{Reader: reader, Accounts: fakeAccounts{owner: "alice"}})
	snap, err := e.GetPositions(context.Background(), "alice", "acct-1", testPool)
	require.NoError(t, err)
	require.Empty(t, snap.Positions)

	_, err = e.GetPositions(context.Background(), "mallory", "acct-1", testPool)
	require.ErrorIs(t, err, errs.ErrPermission)
}

func TestDiscoverPools(t *testing.T) {
	reader := newFakeReader()
	reader.set(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, model.RewardZone{"POOL_A"})
	reader.set(pool.LogicalKey{Contract: "POOL_A", Field: ledgerkey.PoolName}, model.PoolName("Alpha"))
	reader.set(pool.LogicalKey{Contract: "POOL_A", Field: ledgerkey.PoolConfig}, model.PoolConfig{Status: 1})

	r := NewRegistry(reader, nil)
	pools, err := r.DiscoverPools(context.Background(), testNetwork("POOL_A", testPool))
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, model.PoolSummary{Address: "POOL_A", Name: "Alpha", Status: "active", Provenance: model.ProvenanceDirect}, pools[0])
	require.Equal(t, testPool, pools[1].Address)
	require.Equal(t, model.ProvenanceConfigured, pools[1].Provenance)
	require.Equal(t, "unknown", pools[1].Status)
	require.Equal(t, "CCQ7...V3AF", pools[1].Name)
}

func TestDiscoverPoolsFallsBackToConfigured(t *testing.T) {
	reader := newFakeReader()
	reader.fail(pool.LogicalKey{Contract: testBackstop, Field: ledgerkey.BackstopRewardZone}, errs.Transport(nil, "down"))

	r := NewRegistry(reader, nil)
	pools, err := r.DiscoverPools(context.Background(), testNetwork(testPool))
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, model.ProvenanceConfigured, pools[0].Provenance)

	_, err = r.DiscoverPools(context.Background(), testNetwork())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTransactionStatus(t *testing.T) {
	sub := &fakeSubmitter{status: model.TransactionReceipt{Outcome: model.OutcomeSuccess, Hash: "abc", Ledger: 9}}
	e := New(testNetwork(), Deps{Submitter: sub})
	receipt, err := e.TransactionStatus(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, uint32(9), receipt.Ledger)
}
