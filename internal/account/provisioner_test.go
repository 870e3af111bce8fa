package account_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/account"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/internal/store/storetest"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newProvisioner(repo account.Repository) *account.Provisioner {
	return account.NewProvisioner(repo, otelzap.New(zap.NewNop()), account.WithHashCost(bcrypt.MinCost))
}

func TestProvisioner_CreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	repo := store.NewAccountRepository(storetest.New(t))
	p := newProvisioner(repo)

	first, err := p.Provision(ctx, "Ayesha@Example.com", "Ayesha Khan")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.Credential)
	assert.Equal(t, "ayesha@example.com", first.Account.Email)
	assert.Equal(t, "Ayesha", first.Account.FirstName)
	assert.Equal(t, "Khan", first.Account.LastName)
	assert.Equal(t, []string{domain.RoleUser}, first.Account.Roles)
	assert.NotEqual(t, first.Credential, first.Account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(first.Account.PasswordHash), []byte(first.Credential)))

	second, err := p.Provision(ctx, "ayesha@example.com", "Someone Else")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Empty(t, second.Credential)
	assert.Equal(t, first.Account.ID, second.Account.ID)
}

// racingRepo reports not-found on the first lookup, then loses the insert race.
type racingRepo struct {
	mu      sync.Mutex
	lookups int
	winner  *domain.Account
}

func (r *racingRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.lookups == 1 {
		return nil, store.ErrNotFound
	}
	return r.winner, nil
}

func (r *racingRepo) Create(ctx context.Context, a *domain.Account) error {
	return store.ErrDuplicate
}

func TestProvisioner_DuplicateRefetches(t *testing.T) {
	winner := &domain.Account{Email: "bilal@example.com", FirstName: "Bilal"}
	repo := &racingRepo{winner: winner}

	res, err := newProvisioner(repo).Provision(context.Background(), "bilal@example.com", "Bilal Ahmed")

	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.Credential)
	assert.Same(t, winner, res.Account)
}

type failingRepo struct{ err error }

func (f failingRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, f.err
}

func (f failingRepo) Create(ctx context.Context, a *domain.Account) error { return f.err }

func TestProvisioner_Errors(t *testing.T) {
	boom := errors.New("db down")

	_, err := newProvisioner(failingRepo{err: boom}).Provision(context.Background(), "x@example.com", "X")
	assert.ErrorIs(t, err, boom)

	_, err = newProvisioner(failingRepo{err: boom}).Provision(context.Background(), "  ", "X")
	assert.Error(t, err)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ayesha Khan", "Ayesha", "Khan"},
		{"Bilal Ahmed Qureshi", "Bilal", "Ahmed Qureshi"},
		{"Madonna", "Madonna", ""},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := account.SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
