package model

import "time"

// ChainStellar is the only chain tag the vault currently issues keys for.
const ChainStellar = "stellar"

// Account sources.
const (
	SourceGenerated = "generated"
	SourceImported  = "imported"
)

// Account is a vault record. EncryptedKey never leaves the vault package
// decrypted.
type Account struct {
	ID           string
	UserID       string
	Chain        string
	PublicKey    string
	EncryptedKey []byte
	Name         string
	Source       string
	CreatedAt    time.Time
}

// Summary strips key material from the record.
func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:        a.ID,
		Chain:     a.Chain,
		PublicKey: a.PublicKey,
		Name:      a.Name,
		Source:    a.Source,
		CreatedAt: a.CreatedAt,
	}
}

// AccountSummary is the caller-visible view of an account.
type AccountSummary struct {
	ID        string    `json:"id"`
	Chain     string    `json:"chain"`
	PublicKey string    `json:"public_key"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportedAccount carries raw key material returned by a privileged export.
type ExportedAccount struct {
	ID        string `json:"id"`
	Chain     string `json:"chain"`
	PublicKey string `json:"public_key"`
	Secret    string `json:"secret"`
}
