package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"clarify-api/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	credentialKeyPrefix = "profile:key:"
	profileKeyPrefix    = "profile:"
	creditsField        = "credits"
)

// decrementScript returns the new balance, or -1 when the profile is missing
// or already at zero.
var decrementScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'credits')
if not v then
  return -1
end
if tonumber(v) <= 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'credits', -1)
`)

// RedisStore keeps one string key per credential pointing at the account id,
// and one hash per account holding the balance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func credentialKey(credential string) string { return credentialKeyPrefix + credential }
func profileKey(accountID string) string     { return profileKeyPrefix + accountID }

// PutAccount creates or replaces an account and its credential mapping.
func (s *RedisStore) PutAccount(ctx context.Context, credential string, account models.Account) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, credentialKey(credential), account.ID, 0)
		pipe.HSet(ctx, profileKey(account.ID), creditsField, account.Credits)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByCredential(ctx context.Context, credential string) (*models.Account, error) {
	id, err := s.client.Get(ctx, credentialKey(credential)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	credits, err := s.GetCredits(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Account{ID: id, Credits: credits}, nil
}

func (s *RedisStore) GetCredits(ctx context.Context, accountID string) (int, error) {
	raw, err := s.client.HGet(ctx, profileKey(accountID), creditsField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("read credits: %w", err)
	}
	credits, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt credits for %s: %w", accountID, err)
	}
	return credits, nil
}

func (s *RedisStore) SetCredits(ctx context.Context, accountID string, credits int) error {
	exists, err := s.client.Exists(ctx, profileKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("check profile: %w", err)
	}
	if exists == 0 {
		return ErrAccountNotFound
	}
	if err := s.client.HSet(ctx, profileKey(accountID), creditsField, credits).Err(); err != nil {
		return fmt.Errorf("write credits: %w", err)
	}
	return nil
}

func (s *RedisStore) DecrementCredits(ctx context.Context, accountID string) (int, error) {
	remaining, err := decrementScript.Run(ctx, s.client, []string{profileKey(accountID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("decrement credits: %w", err)
	}
	if remaining < 0 {
		return 0, ErrNoCredits
	}
	return remaining, nil
}
