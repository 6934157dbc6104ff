package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS vault_accounts (
	account_id    TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	chain         TEXT NOT NULL,
	public_key    TEXT NOT NULL,
	encrypted_key BYTEA NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_accounts_user_idx ON vault_accounts (user_id, created_at);
`

// Store persists vault accounts in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the accounts table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Insert(ctx context.Context, acct model.Account) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO vault_accounts (
			account_id, user_id, chain, public_key, encrypted_key, name, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO NOTHING
	`,
		acct.ID,
		acct.UserID,
		acct.Chain,
		acct.PublicKey,
		acct.EncryptedKey,
		acct.Name,
		acct.Source,
		acct.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.Input("account %s already exists", acct.ID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, accountID string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, user_id, chain, public_key, encrypted_key, name, source, created_at
		FROM vault_accounts WHERE account_id=$1
	`, accountID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, errs.NotFound("account %s", accountID)
		}
		return model.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, user_id, chain, public_key, encrypted_key, name, source, created_at
		FROM vault_accounts WHERE user_id=$1
		ORDER BY created_at, account_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, userID, accountID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vault_accounts WHERE user_id=$1 AND account_id=$2`, userID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("account %s", accountID)
	}
	return nil
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var acct model.Account
	err := row.Scan(
		&acct.ID,
		&acct.UserID,
		&acct.Chain,
		&acct.PublicKey,
		&acct.EncryptedKey,
		&acct.Name,
		&acct.Source,
		&acct.CreatedAt,
	)
	return acct, err
}
