package soroban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
)

// Caller is the subset of the JSON-RPC client the engine depends on.
// *rpc.Client satisfies it; tests substitute fakes.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	Close()
}

// Options tunes retries and observability of the client.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Client wraps a pooled JSON-RPC connection to a Soroban RPC server. It is safe
// for concurrent use.
type Client struct {
	caller  Caller
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Dial creates a new client from the RPC URL.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClient(rpcClient, opts), nil
}

// NewClient wraps an existing caller.
func NewClient(caller Caller, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{caller: caller, opts: opts, logger: logger, metrics: opts.Metrics}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.caller != nil {
		c.caller.Close()
	}
}

// Params are positional: the server maps array elements onto its named
// parameters in declaration order.

// GetLedgerEntries fetches all keys in one call.
func (c *Client) GetLedgerEntries(ctx context.Context, keys []string) (LedgerEntriesResult, error) {
	var out LedgerEntriesResult
	err := c.call(ctx, &out, "getLedgerEntries", keys)
	return out, err
}

// GetLedgerEntriesGrouped is the degraded read path: one getLedgerEntries call
// per group, carried in a JSON-RPC batch. A failure of one group does not fail
// the others.
func (c *Client) GetLedgerEntriesGrouped(ctx context.Context, groups [][]string) ([]LedgerEntriesResult, []error, error) {
	results := make([]LedgerEntriesResult, len(groups))
	elems := make([]rpc.BatchElem, len(groups))
	for i, keys := range groups {
		elems[i] = rpc.BatchElem{
			Method: "getLedgerEntries",
			Args:   []interface{}{keys},
			Result: &results[i],
		}
	}

	err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func(ctx context.Context) error {
		start := time.Now()
		err := classify(c.caller.BatchCallContext(ctx, elems), "getLedgerEntries batch")
		c.metrics.ObserveRPC("getLedgerEntries_batch", time.Since(start), err)
		if err != nil {
			c.logger.Warn("grouped ledger read failed", zap.Error(err), zap.Int("groups", len(groups)))
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	perGroup := make([]error, len(groups))
	for i, elem := range elems {
		if elem.Error != nil {
			perGroup[i] = classify(elem.Error, "getLedgerEntries")
		}
	}
	return results, perGroup, nil
}

// SimulateTransaction dry-runs a base64 transaction envelope.
func (c *Client) SimulateTransaction(ctx context.Context, envelope string) (SimulateResult, error) {
	var out SimulateResult
	err := c.call(ctx, &out, "simulateTransaction", envelope)
	return out, err
}

// SendTransaction submits a signed envelope. It is never retried here: a send
// whose response was lost must be resolved by hash, not resent blindly.
func (c *Client) SendTransaction(ctx context.Context, envelope string) (SendResult, error) {
	var out SendResult
	start := time.Now()
	err := classify(c.caller.CallContext(ctx, &out, "sendTransaction", envelope), "sendTransaction")
	c.metrics.ObserveRPC("sendTransaction", time.Since(start), err)
	return out, err
}

// GetTransaction looks up a submitted transaction by hash.
func (c *Client) GetTransaction(ctx context.Context, hash string) (TransactionResult, error) {
	var out TransactionResult
	err := c.call(ctx, &out, "getTransaction", hash)
	return out, err
}

// GetLatestLedger returns the latest ledger known to the RPC server.
func (c *Client) GetLatestLedger(ctx context.Context) (LatestLedger, error) {
	var out LatestLedger
	err := c.call(ctx, &out, "getLatestLedger")
	return out, err
}

// GetNetwork returns the network the server is connected to.
func (c *Client) GetNetwork(ctx context.Context) (NetworkInfo, error) {
	var out NetworkInfo
	err := c.call(ctx, &out, "getNetwork")
	return out, err
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func(ctx context.Context) error {
		start := time.Now()
		err := classify(c.caller.CallContext(ctx, result, method, args...), method)
		c.metrics.ObserveRPC(method, time.Since(start), err)
		if err != nil {
			c.logger.Warn("rpc call failed", zap.String("method", method), zap.Error(err))
		}
		return err
	})
}

// classify maps a raw client error into the engine taxonomy. JSON-RPC error
// objects are answers from the server and are not retried; everything that
// smells of the network is.
func classify(err error, method string) error {
	if err == nil {
		return nil
	}
	if _, ok := errs.As(err); ok {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		e := errs.Wrap(errs.KindInput, err, "%s rejected (code %d)", method, rpcErr.ErrorCode())
		if rpcErr.ErrorCode() == codeInvalidParams {
			e = e.WithReason(ReasonInvalidParams)
		}
		return e
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return errs.Transport(err, "%s http %d", method, httpErr.StatusCode)
		}
		return errs.Wrap(errs.KindInput, err, "%s http %d", method, httpErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Transport(err, "%s timed out", method)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	// Anything else from the client (dial, reset, EOF, decode of a truncated
	// body) is treated as a transport failure.
	return errs.Transport(err, "%s", method)
}

const codeInvalidParams = -32602

// ReasonInvalidParams marks a request the server refused as malformed, which
// for batched ledger reads usually means too many keys.
const ReasonInvalidParams errs.Reason = "invalid_params"
