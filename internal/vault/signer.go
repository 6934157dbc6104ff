package vault

import (
	"fmt"
	"sync"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// Signer is a scoped signing capability for one account. It holds the
// account's lock until Release.
type Signer struct {
	cipher  Cipher
	account model.Account
	release func()

	mu       sync.Mutex
	released bool
}

// PublicKey returns the account's G... address.
func (s *Signer) PublicKey() string {
	return s.account.PublicKey
}

// AccountID returns the vault id of the account.
func (s *Signer) AccountID() string {
	return s.account.ID
}

// SignTransaction decrypts the key, signs tx for the given network and wipes
// the plaintext before returning.
func (s *Signer) SignTransaction(tx *txnbuild.Transaction, passphrase string) (*txnbuild.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, errs.Input("signer for account %s already released", s.account.ID)
	}
	if tx == nil {
		return nil, errs.Input("nil transaction")
	}

	seed, err := s.cipher.Decrypt(s.account.EncryptedKey, s.account.UserID)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)

	kp, err := keypair.ParseFull(string(seed))
	if err != nil {
		return nil, fmt.Errorf("stored key for account %s is corrupt", s.account.ID)
	}
	if kp.Address() != s.account.PublicKey {
		return nil, fmt.Errorf("stored key for account %s does not match its public key", s.account.ID)
	}
	return tx.Sign(passphrase, kp)
}

// Release drops the account lock. It is safe to call more than once.
func (s *Signer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.release()
}
