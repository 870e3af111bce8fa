// Package account provisions customer accounts during checkout.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	credentialLength   = 10
	credentialAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Repository is the account storage the provisioner needs.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
}

// Result is the outcome of Provision. Credential holds the generated
// plaintext credential and is only set when Created is true.
type Result struct {
	Account    *domain.Account
	Created    bool
	Credential string
}

// Provisioner finds or creates the account behind a checkout email.
type Provisioner struct {
	accounts Repository
	logger   *otelzap.Logger
	cost     int
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(p *Provisioner) { p.cost = cost }
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(accounts Repository, logger *otelzap.Logger, opts ...Option) *Provisioner {
	p := &Provisioner{accounts: accounts, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision returns the account for email, creating it with a random
// credential when none exists. Calling it again for the same email returns
// the same account with Created false.
func (p *Provisioner) Provision(ctx context.Context, email, fullName string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	existing, err := p.accounts.FindByEmail(ctx, email)
	if err == nil {
		return &Result{Account: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	credential, err := generateCredential(credentialLength)
	if err != nil {
		return nil, fmt.Errorf("generating credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing credential: %w", err)
	}

	first, last := SplitName(fullName)
	account := &domain.Account{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        []string{domain.RoleUser},
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("creating account: %w", err)
		}
		// A concurrent checkout created it first.
		existing, ferr := p.accounts.FindByEmail(ctx, email)
		if ferr != nil {
			return nil, fmt.Errorf("re-reading account after duplicate: %w", ferr)
		}
		return &Result{Account: existing}, nil
	}

	p.logger.Ctx(ctx).Info("Provisioned account", zap.String("account_id", account.ID.String()))
	return &Result{Account: account, Created: true, Credential: credential}, nil
}

// SplitName splits a full name at the first space into first and last parts.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func generateCredential(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(credentialAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(credentialAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
