// internal/services/credit-ledger/ledger.go
package creditledger

import (
	"context"
	"errors"

	"clarify-api/internal/common/config"
	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/common/metrics"
)

// ErrNoCredits is returned in atomic mode when the stored balance was
// already spent by a concurrent request.
var ErrNoCredits = errors.New("NO_CREDITS")

type Ledger struct {
	config *Config
	store  identity.AccountStore
	logger logger.Logger
}

func New(cfg *Config, store identity.AccountStore, log logger.Logger) *Ledger {
	if cfg == nil {
		cfg = LoadConfig(config.LedgerConfig{})
	}
	return &Ledger{
		config: cfg,
		store:  store,
		logger: log.WithFields(map[string]interface{}{
			"component": "credit-ledger",
			"mode":      cfg.Mode,
		}),
	}
}

// Decrement bills one credit after a successful repair and returns the
// balance to report. A failed write is logged and the locally computed
// observed-1 is returned; only a lost race in atomic mode is an error.
// A store without a conditional decrement gets the unconditional write.
func (l *Ledger) Decrement(ctx context.Context, accountID string, observed int) (int, error) {
	if l.config.Mode == config.LedgerModeUnconditional {
		return l.blindWrite(ctx, accountID, observed), nil
	}

	remaining, err := l.store.DecrementCredits(ctx, accountID)
	if err == nil {
		metrics.LedgerWrites.WithLabelValues(l.config.Mode, "ok").Inc()
		return remaining, nil
	}
	if errors.Is(err, identity.ErrDecrementUnsupported) {
		l.logger.Warn("conditional decrement unavailable, writing observed balance", map[string]interface{}{
			"accountId": accountID,
			"observed":  observed,
			"error":     err.Error(),
		})
		return l.blindWrite(ctx, accountID, observed), nil
	}
	if errors.Is(err, identity.ErrNoCredits) {
		metrics.LedgerWrites.WithLabelValues(l.config.Mode, "no_credits").Inc()
		l.logger.Warn("credit already spent", map[string]interface{}{
			"accountId": accountID,
			"observed":  observed,
		})
		return 0, ErrNoCredits
	}

	metrics.LedgerWrites.WithLabelValues(l.config.Mode, "error").Inc()
	l.logger.Error("failed to decrement credits", map[string]interface{}{
		"accountId": accountID,
		"error":     err.Error(),
	})
	return observed - 1, nil
}

// blindWrite stores observed-1 without checking the current value. Concurrent
// requests that observed the same balance all write the same number.
func (l *Ledger) blindWrite(ctx context.Context, accountID string, observed int) int {
	newBalance := observed - 1
	if err := l.store.SetCredits(ctx, accountID, newBalance); err != nil {
		metrics.LedgerWrites.WithLabelValues(l.config.Mode, "error").Inc()
		l.logger.Error("failed to decrement credits", map[string]interface{}{
			"accountId": accountID,
			"error":     err.Error(),
		})
		return newBalance
	}
	metrics.LedgerWrites.WithLabelValues(l.config.Mode, "ok").Inc()
	return newBalance
}
