package vault

import (
	"context"
	"sort"
	"sync"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// Store persists account records keyed by (user_id, account_id). Get looks an
// account up by id alone so the vault can tell "not yours" from "absent".
type Store interface {
	Insert(ctx context.Context, acct model.Account) error
	Get(ctx context.Context, accountID string) (model.Account, error)
	ListByUser(ctx context.Context, userID string) ([]model.Account, error)
	Delete(ctx context.Context, userID, accountID string) error
}

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]model.Account)}
}

func (s *MemoryStore) Insert(ctx context.Context, acct model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[acct.ID]; ok {
		return errs.Input("account %s already exists", acct.ID)
	}
	acct.EncryptedKey = append([]byte(nil), acct.EncryptedKey...)
	s.data[acct.ID] = acct
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (model.Account, error) {
	s.mu.RLock()
	acct, ok := s.data[accountID]
	s.mu.RUnlock()
	if !ok {
		return model.Account{}, errs.NotFound("account %s", accountID)
	}
	acct.EncryptedKey = append([]byte(nil), acct.EncryptedKey...)
	return acct, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Account
	for _, acct := range s.data {
		if acct.UserID == userID {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.data[accountID]
	if !ok || acct.UserID != userID {
		return errs.NotFound("account %s", accountID)
	}
	delete(s.data, accountID)
	return nil
}
