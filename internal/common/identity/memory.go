package identity

import (
	"context"
	"sync"

	"clarify-api/internal/models"
)

// MemoryStore is an in-process AccountStore for local runs and tests.
type MemoryStore struct {
	mu           sync.Mutex
	byCredential map[string]string
	credits      map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCredential: make(map[string]string),
		credits:      make(map[string]int),
	}
}

// PutAccount creates or replaces an account and its credential mapping.
func (s *MemoryStore) PutAccount(credential string, account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCredential[credential] = account.ID
	s.credits[account.ID] = account.Credits
}

func (s *MemoryStore) FindByCredential(_ context.Context, credential string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCredential[credential]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &models.Account{ID: id, Credits: s.credits[id]}, nil
}

func (s *MemoryStore) GetCredits(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credits, ok := s.credits[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return credits, nil
}

func (s *MemoryStore) SetCredits(_ context.Context, accountID string, credits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[accountID]; !ok {
		return ErrAccountNotFound
	}
	s.credits[accountID] = credits
	return nil
}

func (s *MemoryStore) DecrementCredits(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credits, ok := s.credits[accountID]
	if !ok || credits <= 0 {
		return 0, ErrNoCredits
	}
	s.credits[accountID] = credits - 1
	return credits - 1, nil
}
