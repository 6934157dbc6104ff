package vault

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// Cipher seals key material for one user.
type Cipher interface {
	Encrypt(plaintext []byte, userID string) ([]byte, error)
	Decrypt(ciphertext []byte, userID string) ([]byte, error)
}

// KeystoreCipher uses the Web3 secret storage scheme (scrypt, AES-128-CTR and
// a keccak MAC). The passphrase is the master key bound to the user id, so a
// blob copied to another user's row does not decrypt.
type KeystoreCipher struct {
	master  string
	scryptN int
	scryptP int
}

// NewKeystoreCipher validates the master key and scrypt cost.
func NewKeystoreCipher(masterKey string, scryptN, scryptP int) (*KeystoreCipher, error) {
	if len(masterKey) < 16 {
		return nil, fmt.Errorf("master key must be at least 16 characters")
	}
	if scryptN <= 1 || scryptN&(scryptN-1) != 0 {
		return nil, fmt.Errorf("scrypt N must be a power of two greater than 1, got %d", scryptN)
	}
	if scryptP <= 0 {
		return nil, fmt.Errorf("scrypt P must be positive, got %d", scryptP)
	}
	return &KeystoreCipher{master: masterKey, scryptN: scryptN, scryptP: scryptP}, nil
}

func (c *KeystoreCipher) auth(userID string) string {
	return c.master + "\x00" + userID
}

func (c *KeystoreCipher) Encrypt(plaintext []byte, userID string) ([]byte, error) {
	sealed, err := keystore.EncryptDataV3(plaintext, []byte(c.auth(userID)), c.scryptN, c.scryptP)
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}
	return json.Marshal(sealed)
}

func (c *KeystoreCipher) Decrypt(ciphertext []byte, userID string) ([]byte, error) {
	var sealed keystore.CryptoJSON
	if err := json.Unmarshal(ciphertext, &sealed); err != nil {
		return nil, fmt.Errorf("decode sealed key: %w", err)
	}
	plain, err := keystore.DecryptDataV3(sealed, c.auth(userID))
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	return plain, nil
}
