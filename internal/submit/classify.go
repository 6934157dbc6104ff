package submit

import (
	"strings"

	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
)

// Classifier maps contract error codes and host messages to failure reasons.
type Classifier struct {
	codes map[uint32]errs.Reason
}

func NewClassifier(table map[uint32]string) *Classifier {
	codes := make(map[uint32]errs.Reason, len(table))
	for code, reason := range table {
		codes[code] = errs.Reason(reason)
	}
	return &Classifier{codes: codes}
}

// Message classifies a host error string such as the one simulateTransaction
// returns.
func (c *Classifier) Message(msg string) errs.Reason {
	for _, code := range errs.ContractCodes(msg) {
		if reason, ok := c.codes[code]; ok {
			return reason
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "txbad_seq") || strings.Contains(lower, "tx_bad_seq"):
		return errs.ReasonStaleSequence
	case strings.Contains(lower, "insufficient balance") || strings.Contains(lower, "balanceerror"):
		return errs.ReasonInsufficientBalance
	}
	return errs.ReasonUnknown
}

// Events classifies base64 diagnostic events by the first contract error
// they carry.
func (c *Classifier) Events(events []string) errs.Reason {
	for _, raw := range events {
		var ev xdr.DiagnosticEvent
		if err := xdr.SafeUnmarshalBase64(raw, &ev); err != nil {
			continue
		}
		body := ev.Event.Body.V0
		if body == nil {
			continue
		}
		vals := append(append([]xdr.ScVal(nil), body.Topics...), body.Data)
		for _, v := range vals {
			code, ok := contractCode(v)
			if !ok {
				continue
			}
			if reason, ok := c.codes[code]; ok {
				return reason
			}
		}
	}
	return errs.ReasonUnknown
}

// Result classifies a base64 TransactionResult.
func (c *Classifier) Result(resultXDR string) errs.Reason {
	if resultXDR == "" {
		return errs.ReasonUnknown
	}
	var res xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &res); err != nil {
		return errs.ReasonUnknown
	}
	switch res.Result.Code {
	case xdr.TransactionResultCodeTxBadSeq:
		return errs.ReasonStaleSequence
	case xdr.TransactionResultCodeTxInsufficientBalance:
		return errs.ReasonInsufficientBalance
	}
	return errs.ReasonUnknown
}

// First returns the first reason that is not unknown.
func First(reasons ...errs.Reason) errs.Reason {
	for _, r := range reasons {
		if r != errs.ReasonUnknown && r != errs.ReasonNone {
			return r
		}
	}
	return errs.ReasonUnknown
}

func contractCode(v xdr.ScVal) (uint32, bool) {
	if v.Type != xdr.ScValTypeScvError || v.Error == nil {
		return 0, false
	}
	if v.Error.Type != xdr.ScErrorTypeSceContract || v.Error.ContractCode == nil {
		return 0, false
	}
	return uint32(*v.Error.ContractCode), true
}
