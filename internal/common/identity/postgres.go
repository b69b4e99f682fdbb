package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clarify-api/internal/models"
)

const (
	findByCredentialQuery = `SELECT id, credits FROM profiles WHERE api_key = $1 LIMIT 1`
	getCreditsQuery       = `SELECT credits FROM profiles WHERE id = $1`
	setCreditsQuery       = `UPDATE profiles SET credits = $1 WHERE id = $2`
	decrementCreditsQuery = `UPDATE profiles SET credits = credits - 1 WHERE id = $1 AND credits > 0 RETURNING credits`
)

// PostgresStore reads and writes the profiles table directly.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCredential(ctx context.Context, credential string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx, findByCredentialQuery, credential).Scan(&account.ID, &account.Credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) GetCredits(ctx context.Context, accountID string) (int, error) {
	var credits int
	err := s.db.QueryRowContext(ctx, getCreditsQuery, accountID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("query profiles: %w", err)
	}
	return credits, nil
}

func (s *PostgresStore) SetCredits(ctx context.Context, accountID string, credits int) error {
	res, err := s.db.ExecContext(ctx, setCreditsQuery, credits, accountID)
	if err != nil {
		return fmt.Errorf("update profiles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profiles: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DecrementCredits relies on the row lock taken by UPDATE: concurrent callers
// serialize on the row and the credits > 0 guard is re-evaluated for each.
func (s *PostgresStore) DecrementCredits(ctx context.Context, accountID string) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, decrementCreditsQuery, accountID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoCredits
		}
		return 0, fmt.Errorf("decrement profiles: %w", err)
	}
	return remaining, nil
}
