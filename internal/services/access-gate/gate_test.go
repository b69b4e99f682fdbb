package accessgate

import (
	"context"
	"errors"
	"testing"

	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	identity.AccountStore
	lookups int
	err     error
}

func (s *countingStore) FindByCredential(ctx context.Context, credential string) (*models.Account, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.AccountStore.FindByCredential(ctx, credential)
}

func newStore() *countingStore {
	mem := identity.NewMemoryStore()
	mem.PutAccount("rich", models.Account{ID: "acc-rich", Credits: 5})
	mem.PutAccount("broke", models.Account{ID: "acc-broke", Credits: 0})
	mem.PutAccount("overdrawn", models.Account{ID: "acc-neg", Credits: -2})
	return &countingStore{AccountStore: mem}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		storeErr   error
		wantErr    error
		wantID     string
		wantLookup int
	}{
		{name: "missing credential", credential: "", wantErr: ErrUnauthenticated, wantLookup: 0},
		{name: "unknown credential", credential: "nobody", wantErr: ErrForbidden, wantLookup: 1},
		{name: "store error fails closed", credential: "rich", storeErr: errors.New("dial tcp: refused"), wantErr: ErrForbidden, wantLookup: 1},
		{name: "zero credits", credential: "broke", wantErr: ErrInsufficientBalance, wantLookup: 1},
		{name: "negative credits", credential: "overdrawn", wantErr: ErrInsufficientBalance, wantLookup: 1},
		{name: "entitled", credential: "rich", wantID: "acc-rich", wantLookup: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			store.err = tt.storeErr
			gate := New(store, logger.NewTestLogger(t))

			account, err := gate.Authorize(context.Background(), tt.credential)
			assert.Equal(t, tt.wantLookup, store.lookups)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, account)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, account.ID)
			assert.Equal(t, 5, account.Credits)
		})
	}
}

func TestAuthorize_NoCaching(t *testing.T) {
	store := newStore()
	gate := New(store, logger.NewNoOpLogger())

	_, err := gate.Authorize(context.Background(), "rich")
	require.NoError(t, err)
	require.NoError(t, store.SetCredits(context.Background(), "acc-rich", 0))

	_, err = gate.Authorize(context.Background(), "rich")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 2, store.lookups)
}
