package txbuild

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
)

// DefaultTimeout bounds how long a built transaction stays valid, in seconds.
const DefaultTimeout = 300

// Preparation is what a simulation contributes to a transaction: resource
// footprint, fee and authorization entries, all base64 XDR as returned by RPC.
type Preparation struct {
	TransactionData string
	MinResourceFee  int64
	Auth            []string
}

// Transaction builds a transaction from source with sequence seq+1 that runs
// one invocation. A nil prep yields the envelope used for simulation.
func Transaction(source string, seq int64, inv Invocation, prep *Preparation) (*txnbuild.Transaction, error) {
	hf, err := inv.HostFunction()
	if err != nil {
		return nil, err
	}
	op := &txnbuild.InvokeHostFunction{HostFunction: hf}
	fee := int64(txnbuild.MinBaseFee)

	if prep != nil {
		var data xdr.SorobanTransactionData
		if err := xdr.SafeUnmarshalBase64(prep.TransactionData, &data); err != nil {
			return nil, errs.Wrap(errs.KindDecode, err, "soroban transaction data")
		}
		op.Ext = xdr.TransactionExt{V: 1, SorobanData: &data}
		for i, raw := range prep.Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(raw, &entry); err != nil {
				return nil, errs.Wrap(errs.KindDecode, err, "auth entry %d", i)
			}
			op.Auth = append(op.Auth, entry)
		}
		fee += prep.MinResourceFee
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source, Sequence: seq},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              fee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(DefaultTimeout)},
	})
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// Envelope is Transaction rendered as base64 XDR.
func Envelope(source string, seq int64, inv Invocation, prep *Preparation) (string, error) {
	tx, err := Transaction(source, seq, inv, prep)
	if err != nil {
		return "", err
	}
	return tx.Base64()
}
