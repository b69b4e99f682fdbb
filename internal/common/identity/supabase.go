package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	commonhttp "clarify-api/internal/common/http"
	"clarify-api/internal/models"
)

const decrementFunction = "decrement_credits"

// SupabaseStore talks to the profiles table through Supabase's PostgREST API
// using the service-role key.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	table      string
	client     *commonhttp.Client
}

type profileRow struct {
	ID      string `json:"id"`
	Credits int    `json:"credits"`
}

// NewSupabaseStore creates a store for {baseURL}/rest/v1/{table}.
func NewSupabaseStore(baseURL, serviceKey, table string, client *commonhttp.Client) *SupabaseStore {
	if table == "" {
		table = "profiles"
	}
	return &SupabaseStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		table:      table,
		client:     client,
	}
}

func (s *SupabaseStore) headers() map[string]string {
	return map[string]string{
		"apikey":        s.serviceKey,
		"Authorization": "Bearer " + s.serviceKey,
	}
}

func (s *SupabaseStore) tableURL(query url.Values) string {
	return fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, s.table, query.Encode())
}

func (s *SupabaseStore) selectOne(ctx context.Context, column, value string) (*profileRow, error) {
	query := url.Values{}
	query.Set("select", "id,credits")
	query.Set(column, "eq."+value)
	query.Set("limit", "1")

	var rows []profileRow
	if err := s.client.DoJSON(ctx, http.MethodGet, s.tableURL(query), s.headers(), nil, &rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	if len(rows) == 0 {
		return nil, ErrAccountNotFound
	}
	return &rows[0], nil
}

func (s *SupabaseStore) FindByCredential(ctx context.Context, credential string) (*models.Account, error) {
	row, err := s.selectOne(ctx, "api_key", credential)
	if err != nil {
		return nil, err
	}
	return &models.Account{ID: row.ID, Credits: row.Credits}, nil
}

func (s *SupabaseStore) GetCredits(ctx context.Context, accountID string) (int, error) {
	row, err := s.selectOne(ctx, "id", accountID)
	if err != nil {
		return 0, err
	}
	return row.Credits, nil
}

func (s *SupabaseStore) SetCredits(ctx context.Context, accountID string, credits int) error {
	query := url.Values{}
	query.Set("id", "eq."+accountID)

	headers := s.headers()
	headers["Prefer"] = "return=minimal"

	body := map[string]int{"credits": credits}
	if err := s.client.DoJSON(ctx, http.MethodPatch, s.tableURL(query), headers, body, nil); err != nil {
		return fmt.Errorf("update %s: %w", s.table, err)
	}
	return nil
}

// DecrementCredits calls the decrement_credits database function, which runs
// the conditional UPDATE ... RETURNING inside Postgres and yields null when
// nothing was decremented.
func (s *SupabaseStore) DecrementCredits(ctx context.Context, accountID string) (int, error) {
	rpcURL := fmt.Sprintf("%s/rest/v1/rpc/%s", s.baseURL, decrementFunction)

	var remaining *int
	err := s.client.DoJSON(ctx, http.MethodPost, rpcURL, s.headers(), map[string]string{"profile_id": accountID}, &remaining)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("rpc %s not installed: %w: %v", decrementFunction, ErrDecrementUnsupported, err)
		}
		return 0, fmt.Errorf("rpc %s: %w", decrementFunction, err)
	}
	if remaining == nil {
		return 0, ErrNoCredits
	}
	return *remaining, nil
}
