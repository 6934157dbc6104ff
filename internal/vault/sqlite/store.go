package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS vault_accounts (
	account_id    TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	chain         TEXT NOT NULL,
	public_key    TEXT NOT NULL,
	encrypted_key BLOB NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_accounts_user_idx ON vault_accounts (user_id, created_at);
`

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL"

// ErrPathRequired is returned when no database path is configured.
var ErrPathRequired = errors.New("vault sqlite path must be configured")

// Store persists vault accounts in a SQLite file.
type Store struct {
	db *sql.DB
}

// FileDSN turns a filesystem path into an on-disk SQLite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	if strings.HasPrefix(trimmed, "file:") {
		return trimmed, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve vault path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Open opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn, err := FileDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, acct model.Account) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO vault_accounts(account_id, user_id, chain, public_key, encrypted_key, name, source, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
    `, acct.ID, acct.UserID, acct.Chain, acct.PublicKey, acct.EncryptedKey, acct.Name, acct.Source, acct.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.Input("account %s already exists", acct.ID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, accountID string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT account_id, user_id, chain, public_key, encrypted_key, name, source, created_at
        FROM vault_accounts WHERE account_id = ?
    `, accountID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, errs.NotFound("account %s", accountID)
		}
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	return acct, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT account_id, user_id, chain, public_key, encrypted_key, name, source, created_at
        FROM vault_accounts WHERE user_id = ?
        ORDER BY created_at, account_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, userID, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vault_accounts WHERE user_id = ? AND account_id = ?`, userID, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFound("account %s", accountID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (model.Account, error) {
	var (
		acct    model.Account
		created int64
	)
	err := row.Scan(
		&acct.ID,
		&acct.UserID,
		&acct.Chain,
		&acct.PublicKey,
		&acct.EncryptedKey,
		&acct.Name,
		&acct.Source,
		&created,
	)
	if err != nil {
		return model.Account{}, err
	}
	acct.CreatedAt = time.Unix(0, created).UTC()
	return acct, nil
}
