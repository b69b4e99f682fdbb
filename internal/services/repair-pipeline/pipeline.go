// internal/services/repair-pipeline/pipeline.go
package repairpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clarify-api/internal/common/completion"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/common/metrics"
	"clarify-api/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "clarify-api/repair-pipeline"

var (
	// ErrRepairFailed covers Tier 2 service errors and a disabled Tier 2.
	ErrRepairFailed = errors.New("REPAIR_FAILED")
	// ErrInvalidOutput means Tier 2 answered but the answer is not JSON.
	ErrInvalidOutput = errors.New("REPAIR_INVALID_OUTPUT")
)

type Pipeline struct {
	config    *Config
	completer completion.Completer
	heuristic func(string) HeuristicOutcome
	logger    logger.Logger
}

// New builds a pipeline. completer may be nil only when config.HeuristicOnly is set.
func New(config *Config, completer completion.Completer, log logger.Logger) *Pipeline {
	if config == nil {
		config = LoadConfig()
	}
	return &Pipeline{
		config:    config,
		completer: completer,
		heuristic: RepairHeuristic,
		logger:    log.WithFields(map[string]interface{}{"component": "repair-pipeline"}),
	}
}

// Repair runs Tier 1 and, only if it needs a fallback, exactly one Tier 2 call.
func (p *Pipeline) Repair(ctx context.Context, text string) (*models.RepairResult, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "repair",
		trace.WithAttributes(attribute.Int("input.length", len(text))))
	defer span.End()

	result, err := p.repair(ctx, text, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repair failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("repair.tier", string(result.Tier)))
	return result, nil
}

func (p *Pipeline) repair(ctx context.Context, text string, start time.Time) (*models.RepairResult, error) {
	outcome := p.heuristic(text)
	if outcome.Repaired() {
		p.observe(models.TierHeuristic, start)
		return &models.RepairResult{Value: outcome.Value, Tier: models.TierHeuristic}, nil
	}

	p.logger.Info("tier 1 failed, trying tier 2", map[string]interface{}{
		"reason":      outcome.Reason.Error(),
		"inputLength": len(text),
	})

	if p.config.HeuristicOnly || p.completer == nil {
		metrics.RepairFailures.WithLabelValues("fallback_disabled").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRepairFailed, outcome.Reason)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tier2.complete")
	raw, err := p.completer.Complete(ctx, buildRequest(text))
	span.End()
	if err != nil {
		metrics.RepairFailures.WithLabelValues("completion").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}

	value, err := decodeJSON(cleanJSONBlock(raw))
	if err != nil {
		metrics.RepairFailures.WithLabelValues("invalid_output").Inc()
		p.logger.Warn("tier 2 output is not valid JSON", map[string]interface{}{
			"error":        err.Error(),
			"outputLength": len(raw),
		})
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	p.observe(models.TierLLM, start)
	return &models.RepairResult{Value: value, Tier: models.TierLLM}, nil
}

func (p *Pipeline) observe(tier models.Tier, start time.Time) {
	metrics.RepairTier.WithLabelValues(string(tier)).Inc()
	metrics.RepairDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
}
