package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantalab/labauth/model"
)

// memoryAccountRepository keeps accounts in a process-local map. Used in
// tests and in deployments without a database (the single-admin mode).
type memoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[uint64]*model.Account
}

func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		accounts: make(map[uint64]*model.Account),
	}
}

func cloneAccount(account *model.Account) *model.Account {
	clone := *account
	return &clone
}

func (r *memoryAccountRepository) firstMatch(match func(*model.Account) bool) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if match(account) {
			return cloneAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memoryAccountRepository) FirstByID(ctx context.Context, id uint64) (*model.Account, error) {
	return r.firstMatch(func(a *model.Account) bool { return a.ID == id })
}

func (r *memoryAccountRepository) FirstByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.firstMatch(func(a *model.Account) bool { return a.Email == email })
}

func (r *memoryAccountRepository) FirstByResetToken(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, ErrAccountNotFound
	}
	return r.firstMatch(func(a *model.Account) bool { return a.ResetToken == token })
}

func (r *memoryAccountRepository) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return ErrEmailRegistered
		}
	}
	if account.ID == 0 {
		account.ID = model.GenerateID()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *memoryAccountRepository) Updates(ctx context.Context, id uint64, columns map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	for col, val := range columns {
		if err := applyColumn(account, col, val); err != nil {
			return err
		}
	}
	account.UpdatedAt = time.Now()
	return nil
}

func applyColumn(account *model.Account, col string, val interface{}) error {
	switch col {
	case ColPasswordHash:
		account.PasswordHash = val.(string)
	case ColRole:
		account.Role = val.(string)
	case ColDisabled:
		account.Disabled = val.(bool)
	case ColEmailVerified:
		account.EmailVerified = val.(bool)
	case ColFailedLoginCount:
		account.FailedLoginCount = val.(int)
	case ColLockedUntil:
		account.LockedUntil = toTimePtr(val)
	case ColResetToken:
		account.ResetToken = val.(string)
	case ColResetTokenExpiresAt:
		account.ResetTokenExpiresAt = toTimePtr(val)
	case ColLastLoginAt:
		account.LastLoginAt = toTimePtr(val)
	default:
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

func toTimePtr(val interface{}) *time.Time {
	switch v := val.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func (r *memoryAccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accounts := make([]*model.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, cloneAccount(account))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}
