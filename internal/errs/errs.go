package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide to retry, ask the user, or stop.
type Kind string

const (
	KindInput      Kind = "input"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindExpired    Kind = "expired"
	KindTransport  Kind = "transport"
	KindDecode     Kind = "decode"
	KindSimulation Kind = "simulation"
	KindSubmission Kind = "submission"
	KindAmbiguous  Kind = "ambiguous"
)

// Reason narrows simulation and submission failures.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonPoolPaused          Reason = "pool_paused"
	ReasonExceedsLiquidity    Reason = "exceeds_liquidity"
	ReasonStaleSequence       Reason = "stale_sequence"
	ReasonPermissionDenied    Reason = "permission_denied"
	ReasonUnknownShape        Reason = "unknown_shape"
	ReasonNeedsRestore        Reason = "needs_restore"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonUnknown             Reason = "unknown"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrInput      = &Error{Kind: KindInput}
	ErrPermission = &Error{Kind: KindPermission}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrExpired    = &Error{Kind: KindExpired}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrSimulation = &Error{Kind: KindSimulation}
	ErrSubmission = &Error{Kind: KindSubmission}
	ErrAmbiguous  = &Error{Kind: KindAmbiguous}
)

// Error is the structured failure surfaced to callers.
type Error struct {
	Kind    Kind   `json:"kind"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	TxHash  string `json:"tx_hash,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Reason != ReasonNone {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.TxHash != "" {
		msg = fmt.Sprintf("%s [tx %s]", msg, e.TxHash)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Input(format string, args ...interface{}) *Error {
	return New(KindInput, format, args...)
}

func Permission(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermission, Reason: ReasonPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Transport(err error, format string, args ...interface{}) *Error {
	return Wrap(KindTransport, err, format, args...)
}

// WithReason returns a copy of e carrying reason.
func (e *Error) WithReason(reason Reason) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

// WithTx returns a copy of e carrying the transaction hash.
func (e *Error) WithTx(hash string) *Error {
	cp := *e
	cp.TxHash = hash
	return &cp
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err is a transport-level failure.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}
