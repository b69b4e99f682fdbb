// internal/common/completion/completion.go
package completion

import (
	"context"
	"errors"
	"fmt"

	"clarify-api/internal/common/config"
)

var (
	ErrCompletionTimeout = errors.New("COMPLETION_TIMEOUT")
	ErrCompletionFailed  = errors.New("COMPLETION_FAILED")
	ErrEmptyCompletion   = errors.New("COMPLETION_EMPTY")
)

// Request is a single system+user exchange.
type Request struct {
	System string
	User   string
}

// Completer turns a prompt into the model's raw text. Implementations make
// exactly one upstream call per Complete and never retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.CompletionConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, config.GetDuration(cfg.Timeout)), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, config.GetDuration(cfg.Timeout))
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

// classify maps a transport error onto the package sentinels.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCompletionTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCompletionFailed, err)
}
