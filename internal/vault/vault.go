package vault

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/keypair"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/audit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// Options configures a Vault.
type Options struct {
	ExportPerMinute float64
	ExportBurst     int
	Audit           audit.Recorder
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// Vault owns encrypted signing keys per user. Decrypted key material exists
// only inside Export and Signer.SignTransaction.
type Vault struct {
	store   Store
	cipher  Cipher
	locks   *lockTable
	exports *exportLimiter
	audit   audit.Recorder
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New wires a vault over store and cipher.
func New(store Store, cipher Cipher, opts Options) *Vault {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Vault{
		store:   store,
		cipher:  cipher,
		locks:   newLockTable(),
		exports: newExportLimiter(opts.ExportPerMinute, opts.ExportBurst),
		audit:   recorder,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// CreateAccount generates a fresh keypair for userID.
func (v *Vault) CreateAccount(ctx context.Context, userID, chain, name string) (model.AccountSummary, error) {
	if err := requireUser(userID); err != nil {
		return model.AccountSummary{}, err
	}
	chain, err := normalizeChain(chain)
	if err != nil {
		return model.AccountSummary{}, err
	}
	kp, err := keypair.Random()
	if err != nil {
		return model.AccountSummary{}, err
	}
	acct, err := v.persist(ctx, userID, chain, name, model.SourceGenerated, kp)
	if err != nil {
		return model.AccountSummary{}, err
	}
	v.record(ctx, audit.Event{Action: audit.ActionCreate, UserID: userID, AccountID: acct.ID, Outcome: "ok"})
	return acct.Summary(), nil
}

// ImportAccount stores an existing secret seed for userID.
func (v *Vault) ImportAccount(ctx context.Context, userID, chain, secret, name string) (model.AccountSummary, error) {
	if err := requireUser(userID); err != nil {
		return model.AccountSummary{}, err
	}
	chain, err := normalizeChain(chain)
	if err != nil {
		return model.AccountSummary{}, err
	}
	kp, err := keypair.ParseFull(strings.TrimSpace(secret))
	if err != nil {
		return model.AccountSummary{}, errs.Input("invalid secret seed")
	}

	existing, err := v.store.ListByUser(ctx, userID)
	if err != nil {
		return model.AccountSummary{}, err
	}
	for _, acct := range existing {
		if acct.Chain == chain && acct.PublicKey == kp.Address() {
			return model.AccountSummary{}, errs.Input("account %s already imported as %s", kp.Address(), acct.ID)
		}
	}

	acct, err := v.persist(ctx, userID, chain, name, model.SourceImported, kp)
	if err != nil {
		return model.AccountSummary{}, err
	}
	v.record(ctx, audit.Event{Action: audit.ActionImport, UserID: userID, AccountID: acct.ID, Outcome: "ok"})
	return acct.Summary(), nil
}

func (v *Vault) persist(ctx context.Context, userID, chain, name, source string, kp *keypair.Full) (model.Account, error) {
	seed := []byte(kp.Seed())
	sealed, err := v.cipher.Encrypt(seed, userID)
	wipe(seed)
	if err != nil {
		return model.Account{}, err
	}
	acct := model.Account{
		ID:           uuid.NewString(),
		UserID:       userID,
		Chain:        chain,
		PublicKey:    kp.Address(),
		EncryptedKey: sealed,
		Name:         strings.TrimSpace(name),
		Source:       source,
		CreatedAt:    v.now().UTC(),
	}
	if err := v.store.Insert(ctx, acct); err != nil {
		return model.Account{}, err
	}
	v.logger.Info("account stored",
		zap.String("user", userID),
		zap.String("account", acct.ID),
		zap.String("public_key", acct.PublicKey),
		zap.String("source", source),
	)
	return acct, nil
}

// ListAccounts returns the caller's accounts and nobody else's.
func (v *Vault) ListAccounts(ctx context.Context, userID string) ([]model.AccountSummary, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	accounts, err := v.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.AccountSummary, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, acct.Summary())
	}
	return out, nil
}

// Account returns the summary of an account owned by userID.
func (v *Vault) Account(ctx context.Context, userID, accountID string) (model.AccountSummary, error) {
	acct, err := v.authorize(ctx, userID, accountID, "read")
	if err != nil {
		return model.AccountSummary{}, err
	}
	return acct.Summary(), nil
}

// DeleteAccount removes an account after any in-flight signing on it finishes.
func (v *Vault) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := v.authorize(ctx, userID, accountID, audit.ActionDelete); err != nil {
		return err
	}
	release, err := v.locks.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()

	if err := v.store.Delete(ctx, userID, accountID); err != nil {
		return err
	}
	v.record(ctx, audit.Event{Action: audit.ActionDelete, UserID: userID, AccountID: accountID, Outcome: "ok"})
	return nil
}

// Export returns the raw secret of an owned account. Exports are rate limited
// per user and always audited.
func (v *Vault) Export(ctx context.Context, userID, accountID string) (model.ExportedAccount, error) {
	acct, err := v.authorize(ctx, userID, accountID, audit.ActionExport)
	if err != nil {
		return model.ExportedAccount{}, err
	}
	if !v.exports.allow(userID) {
		v.record(ctx, audit.Event{Action: audit.ActionExport, UserID: userID, AccountID: accountID, Outcome: "rate_limited"})
		e := errs.New(errs.KindPermission, "export rate limit exceeded for user %s", userID)
		return model.ExportedAccount{}, e.WithReason(errs.ReasonRateLimited)
	}

	secret, err := v.cipher.Decrypt(acct.EncryptedKey, acct.UserID)
	if err != nil {
		v.record(ctx, audit.Event{Action: audit.ActionExport, UserID: userID, AccountID: accountID, Outcome: "error", Detail: err.Error()})
		return model.ExportedAccount{}, err
	}
	out := model.ExportedAccount{
		ID:        acct.ID,
		Chain:     acct.Chain,
		PublicKey: acct.PublicKey,
		Secret:    string(secret),
	}
	wipe(secret)

	v.record(ctx, audit.Event{Action: audit.ActionExport, UserID: userID, AccountID: accountID, Outcome: "ok"})
	v.logger.Warn("account exported", zap.String("user", userID), zap.String("account", accountID))
	return out, nil
}

// GetSigner checks ownership, then takes the account's lock and hands back a
// capability that signs without exposing the key. The caller must Release it.
func (v *Vault) GetSigner(ctx context.Context, userID, accountID string) (*Signer, error) {
	if _, err := v.authorize(ctx, userID, accountID, "sign"); err != nil {
		return nil, err
	}
	release, err := v.locks.acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// The account may have been deleted while we waited.
	acct, err := v.store.Get(ctx, accountID)
	if err != nil {
		release()
		return nil, err
	}
	return &Signer{cipher: v.cipher, account: acct, release: release}, nil
}

// authorize loads accountID and checks it belongs to userID. It never touches
// the cipher.
func (v *Vault) authorize(ctx context.Context, userID, accountID, action string) (model.Account, error) {
	if err := requireUser(userID); err != nil {
		return model.Account{}, err
	}
	if strings.TrimSpace(accountID) == "" {
		return model.Account{}, errs.Input("account id is required")
	}
	acct, err := v.store.Get(ctx, accountID)
	if err != nil {
		return model.Account{}, err
	}
	if acct.UserID != userID {
		v.metrics.PermissionDenied()
		v.record(ctx, audit.Event{Action: audit.ActionDenied, UserID: userID, AccountID: accountID, Outcome: "denied", Detail: action})
		v.logger.Warn("cross-user account access denied",
			zap.String("user", userID),
			zap.String("account", accountID),
			zap.String("action", action),
		)
		return model.Account{}, errs.Permission("account %s does not belong to user %s", accountID, userID)
	}
	return acct, nil
}

func (v *Vault) record(ctx context.Context, ev audit.Event) {
	ev.Time = v.now().UTC()
	if err := v.audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		v.logger.Error("audit write failed", zap.String("action", ev.Action), zap.Error(err))
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errs.Input("user id is required")
	}
	return nil
}

func normalizeChain(chain string) (string, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		return model.ChainStellar, nil
	}
	if chain != model.ChainStellar {
		return "", errs.Input("unsupported chain: %s", chain)
	}
	return chain, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
