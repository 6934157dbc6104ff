package yield

import (
	"math"
	"math/big"
	"testing"

	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

func TestAPYKnownRate(t *testing.T) {
	got := APY(big.NewInt(912500), DefaultScale)
	if math.Abs(got-9.55) > 0.01 {
		t.Fatalf("apy = %.6f, want 9.55 +/- 0.01", got)
	}
	rounded := model.YieldMetrics{SupplyAPY: got}.Rounded().SupplyAPY
	if rounded != 9.55 {
		t.Fatalf("rounded apy = %v, want 9.55", rounded)
	}
}

func TestAPYZeroAndNil(t *testing.T) {
	if APY(nil, DefaultScale) != 0 || APY(big.NewInt(0), DefaultScale) != 0 {
		t.Fatalf("zero rate must give zero apy")
	}
}

func TestUtilizationZeroSupply(t *testing.T) {
	cases := []struct {
		supplied, borrowed *big.Int
	}{
		{big.NewInt(0), big.NewInt(0)},
		{big.NewInt(0), big.NewInt(100)},
		{nil, big.NewInt(5)},
	}
	for _, tc := range cases {
		u := Utilization(tc.supplied, tc.borrowed)
		if u != 0 || math.IsNaN(u) || math.IsInf(u, 0) {
			t.Fatalf("utilization(%v, %v) = %v, want 0", tc.supplied, tc.borrowed, u)
		}
	}
}

func TestComputeBoundsAndLiquidity(t *testing.T) {
	m := Compute(model.ReserveData{
		BRate:   big.NewInt(912500),
		DRate:   big.NewInt(1_500_000),
		BSupply: big.NewInt(1_000_000),
		DSupply: big.NewInt(750_000),
	}, DefaultScale)
	if m.Utilization != 0.75 {
		t.Fatalf("utilization = %v", m.Utilization)
	}
	if m.AvailableLiquidity.Int64() != 250_000 {
		t.Fatalf("available = %s", m.AvailableLiquidity)
	}
	if m.BorrowAPY <= m.SupplyAPY {
		t.Fatalf("borrow apy %v should exceed supply apy %v", m.BorrowAPY, m.SupplyAPY)
	}

	over := Compute(model.ReserveData{BSupply: big.NewInt(10), DSupply: big.NewInt(11)}, DefaultScale)
	if over.Utilization != 1 || over.AvailableLiquidity.Sign() != 0 {
		t.Fatalf("over-borrowed reserve: %+v", over)
	}
}

func TestComputeDeterministic(t *testing.T) {
	data := model.ReserveData{
		BRate:   big.NewInt(1_234_567),
		DRate:   big.NewInt(2_345_678),
		BSupply: big.NewInt(987_654_321),
		DSupply: big.NewInt(123_456_789),
	}
	first := Compute(data, DefaultScale)
	for i := 0; i < 100; i++ {
		next := Compute(data, DefaultScale)
		if math.Float64bits(next.SupplyAPY) != math.Float64bits(first.SupplyAPY) ||
			math.Float64bits(next.BorrowAPY) != math.Float64bits(first.BorrowAPY) ||
			math.Float64bits(next.Utilization) != math.Float64bits(first.Utilization) {
			t.Fatalf("iteration %d differs: %+v vs %+v", i, next, first)
		}
	}
}

func TestToDecimal(t *testing.T) {
	got := ToDecimal(big.NewInt(12_345_678), 7)
	if got.String() != "1.2345678" {
		t.Fatalf("decimal = %s", got)
	}
}
