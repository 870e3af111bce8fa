package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/internal/domain"
	"gorm.io/gorm"
)

// AccountRepository stores customer accounts.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail looks an account up by its lower-cased email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var model AccountModel
	if err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// Create inserts an account. The email is stored lower-cased; a second
// account with the same email fails with ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	model := accountFromDomain(account)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err)
	}
	account.CreatedAt = model.CreatedAt
	return nil
}
