// Package identity holds the account store contract and its backends. The
// store is the only shared mutable state of the service: it owns the credit
// balance of every account.
package identity

import (
	"context"
	"errors"

	"clarify-api/internal/models"
)

var (
	// ErrAccountNotFound means no account matches the credential or id.
	ErrAccountNotFound = errors.New("ACCOUNT_NOT_FOUND")
	// ErrNoCredits means a conditional decrement found a balance of zero.
	ErrNoCredits = errors.New("NO_CREDITS")
	// ErrDecrementUnsupported means the backend has no conditional decrement
	// installed, e.g. a Supabase project without the decrement_credits function.
	ErrDecrementUnsupported = errors.New("DECREMENT_UNSUPPORTED")
)

// AccountStore is the remote profile lookup/update service.
type AccountStore interface {
	// FindByCredential resolves an API key to its account snapshot.
	FindByCredential(ctx context.Context, credential string) (*models.Account, error)
	// SetCredits writes credits unconditionally.
	SetCredits(ctx context.Context, accountID string, credits int) error
	// DecrementCredits subtracts one credit only if the stored balance is
	// positive and returns the new balance, or ErrNoCredits.
	DecrementCredits(ctx context.Context, accountID string) (int, error)
	// GetCredits reads the stored balance.
	GetCredits(ctx context.Context, accountID string) (int, error)
}
