package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stretchr/testify/require"

	"github.com/yusefmosiah/tuxedo-sub004/internal/audit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
)

// countingCipher binds the plaintext to the user id and counts decryptions.
type countingCipher struct {
	decrypts atomic.Int64
}

func (c *countingCipher) Encrypt(plaintext []byte, userID string) ([]byte, error) {
	out := append([]byte(userID+"|"), plaintext...)
	return out, nil
}

func (c *countingCipher) Decrypt(ciphertext []byte, userID string) ([]byte, error) {
	c.decrypts.Add(1)
	prefix := []byte(userID + "|")
	if !bytes.HasPrefix(ciphertext, prefix) {
		return nil, fmt.Errorf("wrong user")
	}
	return append([]byte(nil), ciphertext[len(prefix):]...), nil
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *memoryRecorder) Record(_ context.Context, events ...audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action+":"+ev.Outcome)
	}
	return out
}

func newTestVault(t *testing.T) (*Vault, *countingCipher, *memoryRecorder) {
	t.Helper()
	cipher := &countingCipher{}
	rec := &memoryRecorder{}
	v := New(NewMemoryStore(), cipher, Options{ExportPerMinute: 1, ExportBurst: 1, Audit: rec})
	return v, cipher, rec
}

func testTx(t *testing.T, source string) *txnbuild.Transaction {
	t.Helper()
	account := txnbuild.NewSimpleAccount(source, 41)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{&txnbuild.BumpSequence{BumpTo: 100}},
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
	})
	require.NoError(t, err)
	return tx
}

func TestCrossUserSignerDeniedWithoutDecrypt(t *testing.T) {
	ctx := context.Background()
	v, cipher, rec := newTestVault(t)
	m := metrics.New(prometheus.NewRegistry())
	v.metrics = m

	acct, err := v.CreateAccount(ctx, "bob", "stellar", "main")
	require.NoError(t, err)

	signer, err := v.GetSigner(ctx, "alice", acct.ID)
	require.Nil(t, signer)
	require.ErrorIs(t, err, errs.ErrPermission)
	require.Equal(t, int64(0), cipher.decrypts.Load())
	require.Contains(t, rec.actions(), audit.ActionDenied+":denied")

	_, err = v.Export(ctx, "alice", acct.ID)
	require.ErrorIs(t, err, errs.ErrPermission)
	require.Equal(t, int64(0), cipher.decrypts.Load())

	err = v.DeleteAccount(ctx, "alice", acct.ID)
	require.ErrorIs(t, err, errs.ErrPermission)

	owned, err := v.ListAccounts(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, owned, 1)
}

func TestListAccountsIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	_, err := v.CreateAccount(ctx, "alice", "", "a1")
	require.NoError(t, err)
	_, err = v.CreateAccount(ctx, "alice", "stellar", "a2")
	require.NoError(t, err)
	_, err = v.CreateAccount(ctx, "bob", "stellar", "b1")
	require.NoError(t, err)

	alice, err := v.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	for _, acct := range alice {
		require.NotEqual(t, "b1", acct.Name)
		require.Equal(t, "stellar", acct.Chain)
	}

	carol, err := v.ListAccounts(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, carol)

	_, err = v.ListAccounts(ctx, " ")
	require.ErrorIs(t, err, errs.ErrInput)
}

func TestCreateAccountRejectsUnknownChain(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.CreateAccount(context.Background(), "alice", "ethereum", "x")
	require.ErrorIs(t, err, errs.ErrInput)
}

func TestImportAccountAndExport(t *testing.T) {
	ctx := context.Background()
	v, cipher, rec := newTestVault(t)

	kp, err := keypair.Random()
	require.NoError(t, err)

	acct, err := v.ImportAccount(ctx, "alice", "stellar", kp.Seed(), "imported")
	require.NoError(t, err)
	require.Equal(t, kp.Address(), acct.PublicKey)
	require.Equal(t, "imported", acct.Source)

	_, err = v.ImportAccount(ctx, "alice", "stellar", kp.Seed(), "again")
	require.ErrorIs(t, err, errs.ErrInput)

	_, err = v.ImportAccount(ctx, "alice", "stellar", "not-a-seed", "bad")
	require.ErrorIs(t, err, errs.ErrInput)

	exported, err := v.Export(ctx, "alice", acct.ID)
	require.NoError(t, err)
	require.Equal(t, kp.Seed(), exported.Secret)
	require.Equal(t, int64(1), cipher.decrypts.Load())
	require.Contains(t, rec.actions(), audit.ActionExport+":ok")
}

func TestExportRateLimited(t *testing.T) {
	ctx := context.Background()
	v, cipher, rec := newTestVault(t)

	acct, err := v.CreateAccount(ctx, "alice", "stellar", "main")
	require.NoError(t, err)

	_, err = v.Export(ctx, "alice", acct.ID)
	require.NoError(t, err)

	_, err = v.Export(ctx, "alice", acct.ID)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindPermission, e.Kind)
	require.Equal(t, errs.ReasonRateLimited, e.Reason)
	require.Equal(t, int64(1), cipher.decrypts.Load())
	require.Contains(t, rec.actions(), audit.ActionExport+":rate_limited")

	// Limits are per user.
	other, err := v.CreateAccount(ctx, "bob", "stellar", "main")
	require.NoError(t, err)
	_, err = v.Export(ctx, "bob", other.ID)
	require.NoError(t, err)
}

func TestSignerSignsAndReleases(t *testing.T) {
	ctx := context.Background()
	v, cipher, _ := newTestVault(t)

	acct, err := v.CreateAccount(ctx, "alice", "stellar", "main")
	require.NoError(t, err)

	signer, err := v.GetSigner(ctx, "alice", acct.ID)
	require.NoError(t, err)
	require.Equal(t, acct.PublicKey, signer.PublicKey())
	require.Equal(t, acct.ID, signer.AccountID())
	require.Equal(t, int64(0), cipher.decrypts.Load())

	signed, err := signer.SignTransaction(testTx(t, acct.PublicKey), network.TestNetworkPassphrase)
	require.NoError(t, err)
	require.Len(t, signed.Signatures(), 1)
	require.Equal(t, int64(1), cipher.decrypts.Load())

	signer.Release()
	signer.Release()

	_, err = signer.SignTransaction(testTx(t, acct.PublicKey), network.TestNetworkPassphrase)
	require.ErrorIs(t, err, errs.ErrInput)
}

func TestSignerLockSerializesAccount(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	acct, err := v.CreateAccount(ctx, "alice", "stellar", "main")
	require.NoError(t, err)

	first, err := v.GetSigner(ctx, "alice", acct.ID)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = v.GetSigner(waitCtx, "alice", acct.ID)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	acquired := make(chan *Signer, 1)
	go func() {
		s, err := v.GetSigner(ctx, "alice", acct.ID)
		if err == nil {
			acquired <- s
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second signer acquired while first held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	first.Release()
	select {
	case s := <-acquired:
		s.Release()
	case <-time.After(time.Second):
		t.Fatal("second signer never acquired the lock")
	}

	// Other accounts are not blocked.
	other, err := v.CreateAccount(ctx, "alice", "stellar", "other")
	require.NoError(t, err)
	held, err := v.GetSigner(ctx, "alice", acct.ID)
	require.NoError(t, err)
	defer held.Release()
	otherCtx, cancelOther := context.WithTimeout(ctx, time.Second)
	defer cancelOther()
	s, err := v.GetSigner(otherCtx, "alice", other.ID)
	require.NoError(t, err)
	s.Release()
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	v, _, rec := newTestVault(t)

	acct, err := v.CreateAccount(ctx, "alice", "stellar", "main")
	require.NoError(t, err)
	require.NoError(t, v.DeleteAccount(ctx, "alice", acct.ID))

	_, err = v.GetSigner(ctx, "alice", acct.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Contains(t, rec.actions(), audit.ActionDelete+":ok")
}

func TestKeystoreCipherBindsUser(t *testing.T) {
	c, err := NewKeystoreCipher("0123456789abcdef-master", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("SECRET"), "alice")
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "SECRET")

	plain, err := c.Decrypt(sealed, "alice")
	require.NoError(t, err)
	require.Equal(t, "SECRET", string(plain))

	_, err = c.Decrypt(sealed, "bob")
	require.Error(t, err)

	_, err = NewKeystoreCipher("short", keystore.LightScryptN, keystore.LightScryptP)
	require.Error(t, err)
	_, err = NewKeystoreCipher("0123456789abcdef-master", 1000, 1)
	require.Error(t, err)
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func TestLockTableDropsIdleSlots(t *testing.T) {
	locks := newLockTable()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "acct-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(waitCtx, "acct-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, locks.size())

	other, err := locks.acquire(ctx, "acct-2")
	require.NoError(t, err)
	require.Equal(t, 2, locks.size())

	release()
	release()
	other()
	require.Zero(t, locks.size())

	again, err := locks.acquire(ctx, "acct-1")
	require.NoError(t, err)
	again()
	require.Zero(t, locks.size())
}
