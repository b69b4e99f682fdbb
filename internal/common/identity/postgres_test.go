package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPostgresStore_FindByCredential(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		wantID    string
		wantCreds int
		wantErr   error
		anyErr    bool
	}{
		{
			name: "known key",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(findByCredentialQuery).
					WithArgs("key-123").
					WillReturnRows(sqlmock.NewRows([]string{"id", "credits"}).AddRow("acc-1", 5))
			},
			wantID:    "acc-1",
			wantCreds: 5,
		},
		{
			name: "unknown key",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(findByCredentialQuery).
					WithArgs("key-123").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrAccountNotFound,
		},
		{
			name: "database error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(findByCredentialQuery).
					WithArgs("key-123").
					WillReturnError(errors.New("connection refused"))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setup(mock)

			account, err := NewPostgresStore(db).FindByCredential(context.Background(), "key-123")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrAccountNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, account.ID)
				assert.Equal(t, tt.wantCreds, account.Credits)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_SetCredits(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(setCreditsQuery).WithArgs(4, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(setCreditsQuery).WithArgs(4, "missing").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	assert.NoError(t, store.SetCredits(context.Background(), "acc-1", 4))
	assert.ErrorIs(t, store.SetCredits(context.Background(), "missing", 4), ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecrementCredits(t *testing.T) {
	t.Run("positive balance", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(decrementCreditsQuery).
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(4))

		remaining, err := NewPostgresStore(db).DecrementCredits(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, 4, remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard rejects zero balance", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(decrementCreditsQuery).
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}))

		_, err := NewPostgresStore(db).DecrementCredits(context.Background(), "acc-1")
		assert.ErrorIs(t, err, ErrNoCredits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error is not ErrNoCredits", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(decrementCreditsQuery).
			WithArgs("acc-1").
			WillReturnError(errors.New("deadlock detected"))

		_, err := NewPostgresStore(db).DecrementCredits(context.Background(), "acc-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCredits)
	})
}

func TestPostgresStore_GetCredits(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(getCreditsQuery).WithArgs("acc-1").WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(9))
	mock.ExpectQuery(getCreditsQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	store := NewPostgresStore(db)
	credits, err := store.GetCredits(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 9, credits)

	_, err = store.GetCredits(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
