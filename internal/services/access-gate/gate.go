// internal/services/access-gate/gate.go
package accessgate

import (
	"context"
	"errors"
	"fmt"

	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/common/metrics"
	"clarify-api/internal/models"
)

var (
	ErrUnauthenticated     = errors.New("UNAUTHENTICATED")
	ErrForbidden           = errors.New("FORBIDDEN")
	ErrInsufficientBalance = errors.New("INSUFFICIENT_BALANCE")
)

// Gate resolves a credential to an account on every call. Nothing is cached
// between requests.
type Gate struct {
	store  identity.AccountStore
	logger logger.Logger
}

func New(store identity.AccountStore, log logger.Logger) *Gate {
	return &Gate{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "access-gate"}),
	}
}

// Authorize fails closed: a store error is reported as ErrForbidden, exactly
// like an unknown credential.
func (g *Gate) Authorize(ctx context.Context, credential string) (*models.Account, error) {
	if credential == "" {
		metrics.AccessDenied.WithLabelValues("missing_key").Inc()
		return nil, ErrUnauthenticated
	}

	account, err := g.store.FindByCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			metrics.AccessDenied.WithLabelValues("unknown_key").Inc()
			return nil, ErrForbidden
		}
		g.logger.Error("identity lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.AccessDenied.WithLabelValues("lookup_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	if !account.HasCredits() {
		metrics.AccessDenied.WithLabelValues("no_credits").Inc()
		return nil, fmt.Errorf("%w: account %s has %d credits", ErrInsufficientBalance, account.ID, account.Credits)
	}

	return account, nil
}
