package txbuild

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

const (
	testPool = "CCQ74HNBMLYICEFUGNLM23QQJU7BKZS7CXC7OAOX4IHRT3LDINZ4V3AF"
	testXLM  = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"
	testUser = "GAAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQDZ7H"
)

func TestScaleAmountTruncatesTowardZero(t *testing.T) {
	got, err := ScaleAmount(decimal.RequireFromString("1.23456789"), 7)
	if err != nil {
		t.Fatalf("ScaleAmount: %v", err)
	}
	if got.String() != "12345678" {
		t.Fatalf("scaled = %s", got)
	}

	got, err = ScaleAmount(decimal.RequireFromString("2.5"), 0)
	if err != nil || got.Int64() != 2 {
		t.Fatalf("scaled = %v, %v", got, err)
	}
}

func TestScaleAmountRejectsNonPositive(t *testing.T) {
	for _, amt := range []string{"0", "-1", "0.00000001", "-0.5"} {
		_, err := ScaleAmount(decimal.RequireFromString(amt), 7)
		if !errors.Is(err, errs.ErrInput) {
			t.Fatalf("amount %s: expected input error, got %v", amt, err)
		}
	}
}

func TestBuildPositionChangeRejectsUnknownKind(t *testing.T) {
	_, err := BuildPositionChange(testUser, testXLM, decimal.NewFromInt(1), model.RequestType(9), testPool, 7)
	if !errors.Is(err, errs.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestBuildPositionChangeEncodesRequestVector(t *testing.T) {
	op, err := BuildPositionChange(testUser, testXLM, decimal.RequireFromString("10.5"), model.Supply, testPool, 7)
	if err != nil {
		t.Fatalf("BuildPositionChange: %v", err)
	}
	if op.Method != SubmitFunction || op.Contract != testPool || len(op.Args) != 4 {
		t.Fatalf("unexpected operation %+v", op.Invocation)
	}
	for i := 0; i < 3; i++ {
		if addr, err := ledgerkey.AsAddress(op.Args[i]); err != nil || addr != testUser {
			t.Fatalf("arg %d = %s, %v", i, addr, err)
		}
	}
	reqs, err := ledgerkey.AsVec(op.Args[3])
	if err != nil || len(reqs) != 1 {
		t.Fatalf("requests = %v, %v", reqs, err)
	}
	fields, err := ledgerkey.AsSymbolMap(reqs[0])
	if err != nil {
		t.Fatalf("request map: %v", err)
	}
	amount, err := ledgerkey.AsI128(fields["amount"])
	if err != nil || amount.Int64() != 105_000_000 {
		t.Fatalf("amount = %v, %v", amount, err)
	}
	kind, err := ledgerkey.AsU32(fields["request_type"])
	if err != nil || kind != uint32(model.Supply) {
		t.Fatalf("request_type = %d, %v", kind, err)
	}
	if asset, _ := ledgerkey.AsAddress(fields["address"]); asset != testXLM {
		t.Fatalf("address = %s", asset)
	}

	entries, _ := ledgerkey.AsMap(reqs[0])
	var keys []string
	for _, e := range entries {
		keys = append(keys, string(*e.Key.Sym))
	}
	if len(keys) != 3 || keys[0] != "address" || keys[1] != "amount" || keys[2] != "request_type" {
		t.Fatalf("map keys not sorted: %v", keys)
	}
}

func TestBuildRequestsMultiple(t *testing.T) {
	scaled, _ := ScaleAmount(decimal.NewFromInt(5), 7)
	op, err := BuildRequests(testUser, testPool, []model.PositionRequest{
		{Asset: testXLM, Amount: scaled, Kind: model.SupplyCollateral},
		{Asset: testXLM, Amount: scaled, Kind: model.Borrow},
	})
	if err != nil {
		t.Fatalf("BuildRequests: %v", err)
	}
	reqs, _ := ledgerkey.AsVec(op.Args[3])
	if len(reqs) != 2 || len(op.Requests) != 2 {
		t.Fatalf("expected 2 requests")
	}
	if _, err := BuildRequests(testUser, testPool, nil); !errors.Is(err, errs.ErrInput) {
		t.Fatalf("expected input error for empty vector, got %v", err)
	}
}

func TestTransactionSequenceAndFee(t *testing.T) {
	op, err := BuildPositionChange(testUser, testXLM, decimal.NewFromInt(1), model.Withdraw, testPool, 7)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := xdr.MarshalBase64(xdr.SorobanTransactionData{ResourceFee: 5000})
	if err != nil {
		t.Fatalf("marshal soroban data: %v", err)
	}

	tx, err := Transaction(testUser, 41, op.Invocation, &Preparation{TransactionData: data, MinResourceFee: 5000})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if tx.SequenceNumber() != 42 {
		t.Fatalf("sequence = %d, want 42", tx.SequenceNumber())
	}
	if tx.BaseFee() != 100+5000 {
		t.Fatalf("fee = %d", tx.BaseFee())
	}
	if _, err := tx.Base64(); err != nil {
		t.Fatalf("Base64: %v", err)
	}
}
