package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// AccountRepository provides document store access for accounts.
type AccountRepository struct {
	store docstore.Store
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(store docstore.Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// FindByEmail returns an account by email address. Emails are compared lower-cased.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	q := docstore.Collection(models.CollectionAccounts).Eq(models.FieldEmail, normalizeEmail(email))
	docs, err := r.store.QueryOnce(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var account models.Account
	if err := docstore.Decode(docs[0], &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	doc, err := r.store.Get(ctx, models.CollectionAccounts, id)
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	var account models.Account
	if err := docstore.Decode(doc, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Create inserts a new account and assigns the generated id.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Email = normalizeEmail(account.Email)

	id, err := r.store.Create(ctx, models.CollectionAccounts, account.Fields())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	account.ID = id
	return nil
}

// UpdateLastLogin stamps the last successful login.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	err := r.store.Update(ctx, models.CollectionAccounts, id, map[string]interface{}{
		models.FieldLastLogin: ts,
		models.FieldUpdatedAt: ts,
	})
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	err := r.store.Update(ctx, models.CollectionAccounts, id, map[string]interface{}{
		models.FieldPasswordHash: passwordHash,
		models.FieldUpdatedAt:    updatedAt,
	})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
