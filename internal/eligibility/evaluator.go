/**
 * @description
 * Donor eligibility evaluation. The Evaluator validates a questionnaire and
 * asks an Oracle for the decision. Two oracles exist: RuleOracle applies a
 * versioned rule set deterministically, ModelOracle asks the language model.
 *
 * @dependencies
 * - go.uber.org/zap: structured logging.
 */

package eligibility

import (
	"context"
	"fmt"

	"github.com/herodrop/rewards-service/internal/domain"
	"go.uber.org/zap"
)

// Oracle decides eligibility for a validated answer set.
type Oracle interface {
	Decide(ctx context.Context, answers domain.AnswerSet) (domain.EligibilityDecision, error)
}

// Evaluator is the entry point used by the booking flow.
type Evaluator struct {
	oracle Oracle
	logger *zap.Logger
}

func NewEvaluator(oracle Oracle, logger *zap.Logger) *Evaluator {
	return &Evaluator{oracle: oracle, logger: logger.With(zap.String("component", "eligibility"))}
}

// Evaluate rejects malformed answers with a domain.FieldError before the oracle
// is consulted. Oracle failures are returned to the caller unchanged.
func (e *Evaluator) Evaluate(ctx context.Context, answers domain.AnswerSet) (domain.EligibilityDecision, error) {
	if err := answers.Validate(); err != nil {
		return domain.EligibilityDecision{}, err
	}
	decision, err := e.oracle.Decide(ctx, answers)
	if err != nil {
		e.logger.Warn("eligibility decision failed", zap.String("outcome", "error"), zap.Error(err))
		return domain.EligibilityDecision{}, fmt.Errorf("decide eligibility: %w", err)
	}
	e.logger.Info("eligibility decided",
		zap.Bool("eligible", decision.IsEligible),
		zap.String("rule_set", decision.RuleSet),
	)
	return decision, nil
}
