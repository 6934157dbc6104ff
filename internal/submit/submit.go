// Package submit drives a built operation through simulation, signing,
// submission and confirmation.
package submit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/audit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/soroban"
	"github.com/yusefmosiah/tuxedo-sub004/internal/txbuild"
	"github.com/yusefmosiah/tuxedo-sub004/internal/vault"
)

// RPC is the part of the Soroban client the submitter uses.
type RPC interface {
	GetLedgerEntries(ctx context.Context, keys []string) (soroban.LedgerEntriesResult, error)
	SimulateTransaction(ctx context.Context, envelope string) (soroban.SimulateResult, error)
	SendTransaction(ctx context.Context, envelope string) (soroban.SendResult, error)
	GetTransaction(ctx context.Context, hash string) (soroban.TransactionResult, error)
}

// Credentials hands out signing capabilities.
type Credentials interface {
	GetSigner(ctx context.Context, userID, accountID string) (*vault.Signer, error)
}

// Options configures a Submitter.
type Options struct {
	Passphrase     string
	Simulate       bool
	Timeout        time.Duration
	PollInterval   time.Duration
	SendRetries    int
	ContractErrors map[uint32]string
	Audit          audit.Recorder
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// BuildFunc builds the operation once the source account is known.
type BuildFunc func(source string) (txbuild.UnsignedOperation, error)

// Request is one submission on behalf of a user.
type Request struct {
	UserID    string
	AccountID string
	Build     BuildFunc
	DryRun    bool
}

// Submitter is safe for concurrent use. Submissions for the same account are
// serialized by the vault's account lock.
type Submitter struct {
	rpc      RPC
	creds    Credentials
	opts     Options
	classify *Classifier
	audit    audit.Recorder
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(rpc RPC, creds Credentials, opts Options) *Submitter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SendRetries <= 0 {
		opts.SendRetries = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Submitter{
		rpc:      rpc,
		creds:    creds,
		opts:     opts,
		classify: NewClassifier(opts.ContractErrors),
		audit:    recorder,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Submit runs req to a final receipt. Logical outcomes (rejection, failure,
// ambiguity) come back as a receipt; a returned error means nothing was sent.
func (s *Submitter) Submit(ctx context.Context, req Request) (model.TransactionReceipt, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return model.TransactionReceipt{}, errs.Input("user id is required")
	}
	if req.Build == nil {
		return model.TransactionReceipt{}, errs.Input("no operation to submit")
	}

	signer, err := s.creds.GetSigner(ctx, req.UserID, req.AccountID)
	if err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.KindPermission {
			return s.finish(ctx, req, model.TransactionReceipt{Outcome: model.OutcomeRejected, Error: e}), nil
		}
		return model.TransactionReceipt{}, err
	}
	defer signer.Release()

	source := signer.PublicKey()
	op, err := req.Build(source)
	if err != nil {
		return model.TransactionReceipt{}, err
	}

	seq, err := s.loadSequence(ctx, source)
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	log := s.logger.With(
		zap.String("account", req.AccountID),
		zap.String("source", source),
		zap.String("pool", op.Pool),
		zap.Int64("sequence", seq+1),
	)

	var sim *simulation
	if s.opts.Simulate || req.DryRun {
		receipt, p, err := s.simulate(ctx, source, seq, op)
		if err != nil {
			return model.TransactionReceipt{}, err
		}
		if receipt != nil {
			log.Info("simulation rejected operation", zap.Error(receipt.Error))
			return s.finish(ctx, req, *receipt), nil
		}
		sim = p
		if req.DryRun {
			return s.finish(ctx, req, model.TransactionReceipt{
				Outcome:  model.OutcomeSimulated,
				Sequence: seq + 1,
				Projected: &model.Projection{
					MinResourceFee: p.MinResourceFee,
					LatestLedger:   p.latestLedger,
					ResultXDR:      p.resultXDR,
				},
			}), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return model.TransactionReceipt{}, err
	}

	var prepared *txbuild.Preparation
	if sim != nil {
		prepared = &sim.Preparation
	}
	tx, err := txbuild.Transaction(source, seq, op.Invocation, prepared)
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	signed, err := signer.SignTransaction(tx, s.opts.Passphrase)
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	envelope, err := signed.Base64()
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	hash, err := signed.HashHex(s.opts.Passphrase)
	if err != nil {
		return model.TransactionReceipt{}, err
	}

	// Once signed the transaction may land; follow it to the end regardless
	// of the caller's context.
	bg := context.WithoutCancel(ctx)
	log = log.With(zap.String("hash", hash))
	log.Info("submit transaction")

	receipt := s.send(bg, envelope, hash, log)
	receipt.Sequence = seq + 1
	return s.finish(bg, req, receipt), nil
}

// Status reports what the network knows about hash right now.
func (s *Submitter) Status(ctx context.Context, hash string) (model.TransactionReceipt, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return model.TransactionReceipt{}, errs.Input("transaction hash is required")
	}
	res, err := s.rpc.GetTransaction(ctx, hash)
	if err != nil {
		return model.TransactionReceipt{}, err
	}
	if receipt, done := s.settled(hash, res); done {
		return receipt, nil
	}
	e := errs.New(errs.KindAmbiguous, "transaction not yet known to the network").WithTx(hash)
	return model.TransactionReceipt{Outcome: model.OutcomeAmbiguous, Hash: hash, Error: e}, nil
}

func (s *Submitter) loadSequence(ctx context.Context, address string) (int64, error) {
	key, err := ledgerkey.AccountKey(address)
	if err != nil {
		return 0, errs.Input("source account: %v", err)
	}
	res, err := s.rpc.GetLedgerEntries(ctx, []string{key})
	if err != nil {
		return 0, err
	}
	if len(res.Entries) == 0 {
		return 0, errs.NotFound("source account %s is not funded", address)
	}
	return ledgerkey.DecodeAccountSequence(res.Entries[0].XDR)
}

type simulation struct {
	txbuild.Preparation
	latestLedger uint32
	resultXDR    string
}

// simulate returns a receipt when the simulation itself says no.
func (s *Submitter) simulate(ctx context.Context, source string, seq int64, op txbuild.UnsignedOperation) (*model.TransactionReceipt, *simulation, error) {
	envelope, err := txbuild.Envelope(source, seq, op.Invocation, nil)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return nil, nil, err
	}
	if res.Error != "" {
		reason := First(s.classify.Message(res.Error), s.classify.Events(res.Events))
		e := errs.New(errs.KindSimulation, "simulation failed: %s", firstLine(res.Error)).WithReason(reason)
		return &model.TransactionReceipt{Outcome: model.OutcomeFailed, Error: e}, nil, nil
	}
	if res.RestorePreamble != nil {
		e := errs.New(errs.KindExpired, "operation touches archived ledger entries").WithReason(errs.ReasonNeedsRestore)
		return &model.TransactionReceipt{Outcome: model.OutcomeFailed, Error: e}, nil, nil
	}

	sim := &simulation{
		Preparation: txbuild.Preparation{
			TransactionData: res.TransactionData,
			MinResourceFee:  res.MinResourceFee,
		},
		latestLedger: res.LatestLedger,
	}
	if len(res.Results) > 0 {
		sim.Auth = res.Results[0].Auth
		sim.resultXDR = res.Results[0].XDR
	}
	return nil, sim, nil
}

// send submits and then polls until the transaction settles or the timeout
// passes. ctx must not be cancellable.
func (s *Submitter) send(ctx context.Context, envelope, hash string, log *zap.Logger) model.TransactionReceipt {
	deadline := time.Now().Add(s.opts.Timeout)

	for attempt := 0; ; attempt++ {
		res, err := s.rpc.SendTransaction(ctx, envelope)
		if err != nil {
			// The server may have accepted it before the connection dropped.
			log.Warn("send failed, tracking by hash", zap.Error(err))
			break
		}
		switch res.Status {
		case soroban.SendPending, soroban.SendDuplicate:
		case soroban.SendError:
			reason := First(s.classify.Result(res.ErrorResultXDR), s.classify.Events(res.DiagnosticEventsXDR))
			e := errs.New(errs.KindSubmission, "transaction rejected by the network").WithReason(reason).WithTx(hash)
			return model.TransactionReceipt{Outcome: model.OutcomeFailed, Hash: hash, Error: e}
		case soroban.SendTryAgainLater:
			if attempt+1 < s.opts.SendRetries && time.Now().Before(deadline) {
				log.Info("network busy, resending", zap.Int("attempt", attempt+1))
				time.Sleep(s.opts.PollInterval)
				continue
			}
			e := errs.New(errs.KindSubmission, "network asked to try again later").WithReason(errs.ReasonUnknown).WithTx(hash)
			return model.TransactionReceipt{Outcome: model.OutcomeFailed, Hash: hash, Error: e}
		default:
			log.Warn("unexpected send status", zap.String("status", res.Status))
		}
		break
	}

	for {
		res, err := s.rpc.GetTransaction(ctx, hash)
		if err != nil {
			log.Warn("poll failed", zap.Error(err))
		} else if receipt, done := s.settled(hash, res); done {
			log.Info("transaction settled", zap.String("outcome", string(receipt.Outcome)), zap.Uint32("ledger", receipt.Ledger))
			return receipt
		}
		if !time.Now().Add(s.opts.PollInterval).Before(deadline) {
			break
		}
		time.Sleep(s.opts.PollInterval)
	}

	log.Warn("transaction outcome unknown at timeout")
	e := errs.New(errs.KindAmbiguous, "no final status within %s", s.opts.Timeout).WithTx(hash)
	return model.TransactionReceipt{Outcome: model.OutcomeAmbiguous, Hash: hash, Error: e}
}

func (s *Submitter) settled(hash string, res soroban.TransactionResult) (model.TransactionReceipt, bool) {
	switch res.Status {
	case soroban.TxSuccess:
		return model.TransactionReceipt{Outcome: model.OutcomeSuccess, Hash: hash, Ledger: res.Ledger}, true
	case soroban.TxFailed:
		reason := First(s.classify.Events(res.DiagnosticEventsXDR), s.classify.Result(res.ResultXDR))
		e := errs.New(errs.KindSubmission, "transaction failed on chain").WithReason(reason).WithTx(hash)
		return model.TransactionReceipt{Outcome: model.OutcomeFailed, Hash: hash, Ledger: res.Ledger, Error: e}, true
	}
	return model.TransactionReceipt{}, false
}

func (s *Submitter) finish(ctx context.Context, req Request, receipt model.TransactionReceipt) model.TransactionReceipt {
	reason := ""
	detail := ""
	if receipt.Error != nil {
		reason = string(receipt.Error.Reason)
		detail = receipt.Error.Message
	}
	s.metrics.ObserveSubmission(string(receipt.Outcome), reason)
	ev := audit.Event{
		Time:      time.Now().UTC(),
		Action:    audit.ActionSubmit,
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Outcome:   string(receipt.Outcome),
		TxHash:    receipt.Hash,
		Detail:    detail,
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error("audit write failed", zap.Error(err))
	}
	return receipt
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
