package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/quantalab/labauth/model"
	"gorm.io/gorm"
)

// Column names used in partial updates.
const (
	ColPasswordHash        = "password_hash"
	ColRole                = "role"
	ColDisabled            = "disabled"
	ColEmailVerified       = "email_verified"
	ColFailedLoginCount    = "failed_login_count"
	ColLockedUntil         = "locked_until"
	ColResetToken          = "reset_token"
	ColResetTokenExpiresAt = "reset_token_expires_at"
	ColLastLoginAt         = "last_login_at"
)

type AccountRepository interface {
	FirstByID(ctx context.Context, id uint64) (*model.Account, error)
	FirstByEmail(ctx context.Context, email string) (*model.Account, error)
	FirstByResetToken(ctx context.Context, token string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	Updates(ctx context.Context, id uint64, columns map[string]interface{}) error
	List(ctx context.Context) ([]*model.Account, error)
}

type gormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: db}
}

func (r *gormAccountRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormAccountRepository) FirstByID(ctx context.Context, id uint64) (*model.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormAccountRepository) FirstByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormAccountRepository) FirstByResetToken(ctx context.Context, token string) (*model.Account, error) {
	return r.first(ctx, "reset_token = ?", token)
}

func (r *gormAccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 && strings.Contains(mysqlErr.Message, "email") {
		return ErrEmailRegistered
	}
	return err
}

func (r *gormAccountRepository) Updates(ctx context.Context, id uint64, columns map[string]interface{}) error {
	ret := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(columns)
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *gormAccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}
