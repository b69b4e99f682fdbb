package identity

import (
	"context"
	"fmt"
	"io"

	"clarify-api/internal/common/config"
	"clarify-api/internal/common/database"
	commonhttp "clarify-api/internal/common/http"
	"clarify-api/internal/models"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store selected by cfg.Backend and checks connectivity for
// the database-backed variants. The returned closer releases pooled connections.
func Open(ctx context.Context, cfg config.IdentityConfig) (AccountStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		client := commonhttp.NewClient(config.GetDuration(cfg.Supabase.Timeout))
		return NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey, cfg.Supabase.Table, client), nopCloser{}, nil

	case config.BackendPostgres:
		pg, err := database.NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		return NewPostgresStore(pg.DB), pg, nil

	case config.BackendRedis:
		rc, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, nil, err
		}
		return NewRedisStore(rc.Client), rc, nil

	case config.BackendMemory:
		store := NewMemoryStore()
		for _, a := range cfg.Memory.Accounts {
			store.PutAccount(a.APIKey, models.Account{ID: a.ID, Credits: a.Credits})
		}
		return store, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown identity backend %q", cfg.Backend)
	}
}
