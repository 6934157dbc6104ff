package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellar/go-stellar-sdk/xdr"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/soroban"
)

// LogicalKey names one field of one contract, with its address argument when
// the field takes one (asset for reserves, user for positions).
type LogicalKey struct {
	Contract string
	Field    ledgerkey.Field
	Arg      string
}

func (k LogicalKey) String() string {
	if k.Arg == "" {
		return fmt.Sprintf("%s/%s", k.Contract, k.Field)
	}
	return fmt.Sprintf("%s/%s(%s)", k.Contract, k.Field, k.Arg)
}

func (k LogicalKey) args() []string {
	if k.Arg == "" {
		return nil
	}
	return []string{k.Arg}
}

// Result is the outcome of one logical read. Exactly one of Record and Err is set.
type Result struct {
	Key        LogicalKey
	Record     interface{}
	Strategy   ledgerkey.Strategy
	Provenance model.Provenance
	LiveUntil  uint32
	Err        error
}

// LedgerSource is the ledger-entry half of the RPC client.
type LedgerSource interface {
	GetLedgerEntries(ctx context.Context, keys []string) (soroban.LedgerEntriesResult, error)
	GetLedgerEntriesGrouped(ctx context.Context, groups [][]string) ([]soroban.LedgerEntriesResult, []error, error)
}

// ContractReader runs read-only contract getters.
type ContractReader interface {
	Call(ctx context.Context, contract, method string, args ...xdr.ScVal) (xdr.ScVal, error)
}

// Options configures a Reader.
type Options struct {
	DirectReads bool
	// MissingCodes are contract error codes a getter raises for an entry
	// that does not exist, such as an asset the pool does not list.
	MissingCodes []uint32
	ReadTimeout  time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Reader fetches and decodes pool state. It holds no per-call state and is
// safe for concurrent use.
type Reader struct {
	codec   *ledgerkey.Codec
	source  LedgerSource
	getter  ContractReader
	opts    Options
	missing map[uint32]bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewReader builds a Reader. getter may be nil, which disables the
// simulation fallback.
func NewReader(codec *ledgerkey.Codec, source LedgerSource, getter ContractReader, opts Options) *Reader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	missing := make(map[uint32]bool, len(opts.MissingCodes))
	for _, code := range opts.MissingCodes {
		missing[code] = true
	}
	return &Reader{codec: codec, source: source, getter: getter, opts: opts, missing: missing, logger: logger, metrics: opts.Metrics}
}

var errDirectDisabled = errs.New(errs.KindInput, "direct ledger reads disabled and no simulation path configured")

// ReadMany reads every key in as few round trips as possible. Results are
// returned in input order.
func (r *Reader) ReadMany(ctx context.Context, keys []LogicalKey) []Result {
	results := make([]Result, len(keys))
	tagged := make([][]ledgerkey.TaggedKey, len(keys))
	pending := make([]int, 0, len(keys))
	for i, k := range keys {
		results[i].Key = k
		tk, err := r.codec.Keys(k.Contract, k.Field, k.args())
		if err != nil {
			results[i].Err = errs.Wrap(errs.KindInput, err, "%s", k)
			continue
		}
		tagged[i] = tk
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		if r.opts.DirectReads && r.source != nil {
			r.readDirect(ctx, pending, tagged, results)
		} else {
			for _, i := range pending {
				results[i].Err = errDirectDisabled
			}
		}
		r.fallback(ctx, pending, results)
	}

	for _, res := range results {
		r.metrics.ObserveRead(res.Key.Field.String(), string(res.Provenance), res.Err)
	}
	return results
}

// Read is ReadMany for a single key.
func (r *Reader) Read(ctx context.Context, key LogicalKey) Result {
	return r.ReadMany(ctx, []LogicalKey{key})[0]
}

func (r *Reader) readDirect(ctx context.Context, pending []int, tagged [][]ledgerkey.TaggedKey, results []Result) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ReadTimeout)
	defer cancel()

	seen := make(map[string]bool)
	var uniq []string
	for _, i := range pending {
		for _, tk := range tagged[i] {
			if !seen[tk.Key] {
				seen[tk.Key] = true
				uniq = append(uniq, tk.Key)
			}
		}
	}

	res, err := r.source.GetLedgerEntries(ctx, uniq)
	if err == nil {
		entries := indexEntries(res)
		for _, i := range pending {
			results[i] = r.resolve(results[i].Key, tagged[i], entries, res.LatestLedger)
		}
		return
	}

	if errs.KindOf(err) != errs.KindInput {
		r.logger.Warn("batched ledger read failed", zap.Int("keys", len(uniq)), zap.Error(err))
		for _, i := range pending {
			results[i].Err = err
		}
		return
	}

	// The server refused the batch; fall back to one call per logical key.
	r.logger.Info("batched ledger read rejected, reading per key", zap.Int("keys", len(uniq)), zap.Error(err))
	groups := make([][]string, len(pending))
	for j, i := range pending {
		for _, tk := range tagged[i] {
			groups[j] = append(groups[j], tk.Key)
		}
	}
	grouped, perGroup, err := r.source.GetLedgerEntriesGrouped(ctx, groups)
	if err != nil {
		for _, i := range pending {
			results[i].Err = err
		}
		return
	}
	for j, i := range pending {
		if perGroup[j] != nil {
			results[i].Err = perGroup[j]
			continue
		}
		results[i] = r.resolve(results[i].Key, tagged[i], indexEntries(grouped[j]), grouped[j].LatestLedger)
	}
}

func indexEntries(res soroban.LedgerEntriesResult) map[string]soroban.LedgerEntry {
	out := make(map[string]soroban.LedgerEntry, len(res.Entries))
	for _, e := range res.Entries {
		out[e.Key] = e
	}
	return out
}

// resolve picks the first strategy whose entry exists and decodes.
func (r *Reader) resolve(k LogicalKey, tagged []ledgerkey.TaggedKey, entries map[string]soroban.LedgerEntry, latest uint32) Result {
	tried := make([]string, 0, len(tagged))
	var decodeErrs []string
	for _, tk := range tagged {
		tried = append(tried, string(tk.Strategy))
		entry, ok := entries[tk.Key]
		if !ok {
			continue
		}
		var liveUntil uint32
		if entry.LiveUntilLedger != nil {
			liveUntil = *entry.LiveUntilLedger
			if liveUntil < latest {
				e := errs.New(errs.KindExpired, "%s archived at ledger %d, latest %d", k, liveUntil, latest).
					WithReason(errs.ReasonNeedsRestore)
				return Result{Key: k, Strategy: tk.Strategy, LiveUntil: liveUntil, Err: e}
			}
		}
		rec, err := r.codec.DecodeValue(k.Field, entry.XDR)
		if errors.Is(err, ledgerkey.ErrAbsent) {
			continue
		}
		if err != nil {
			decodeErrs = append(decodeErrs, fmt.Sprintf("%s: %v", tk.Strategy, err))
			continue
		}
		return Result{Key: k, Record: rec, Strategy: tk.Strategy, Provenance: model.ProvenanceDirect, LiveUntil: liveUntil}
	}

	if len(decodeErrs) > 0 {
		e := errs.New(errs.KindDecode, "%s: no strategy decoded (%s)", k, strings.Join(decodeErrs, "; ")).
			WithReason(errs.ReasonUnknownShape)
		return Result{Key: k, Err: e}
	}
	return Result{Key: k, Err: errs.NotFound("%s: no entry under strategies [%s]", k, strings.Join(tried, ", "))}
}

func needsFallback(err error) bool {
	if err == errDirectDisabled {
		return true
	}
	switch errs.KindOf(err) {
	case errs.KindTransport, errs.KindDecode:
		return true
	}
	return false
}
