package model

import "github.com/yusefmosiah/tuxedo-sub004/internal/errs"

// Outcome is the terminal state of one submit attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRejected  Outcome = "rejected"
	OutcomeSimulated Outcome = "simulated"
	OutcomeFailed    Outcome = "failed"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// TransactionReceipt records the result of one submit attempt.
type TransactionReceipt struct {
	Outcome   Outcome     `json:"outcome"`
	Hash      string      `json:"hash,omitempty"`
	Ledger    uint32      `json:"ledger,omitempty"`
	Sequence  int64       `json:"sequence,omitempty"`
	Error     *errs.Error `json:"error,omitempty"`
	Projected *Projection `json:"projected,omitempty"`
}

// Projection is what a dry run predicts.
type Projection struct {
	MinResourceFee int64  `json:"min_resource_fee"`
	LatestLedger   uint32 `json:"latest_ledger"`
	ResultXDR      string `json:"result_xdr,omitempty"`
}

// OK reports whether the receipt is a confirmed success.
func (r TransactionReceipt) OK() bool {
	return r.Outcome == OutcomeSuccess
}
