package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sievemod/sieve/countstore"
)

// Source of the active rule set. Implementations may cache; a load failure is
// fatal for the evaluation cycle.
type RuleSource interface {
	ActiveRuleSet(ctx context.Context) (*RuleSet, error)
}

// Read access to previously recorded decisions, used to honor
// once_per_content trigger frequency on re-evaluation. Returns (nil, nil)
// when no decision exists for the content.
type DecisionSource interface {
	GetDecision(ctx context.Context, contentID string) (*ModerationDecision, error)
}

// Per-triggered-rule confidence boost when other triggered rules agree on
// severity.
const agreementBoost = 0.05

// Runtime for evaluating the active rule set against content events and
// emitting scored moderation decisions.
//
// Evaluation is synchronous and stateless over the immutable snapshot; the
// only shared mutable state is the counter store, which is safe for
// concurrent use.
type Engine struct {
	Logger    *slog.Logger
	Rules     RuleSource
	Counters  countstore.CountStore
	Evaluator *Evaluator
	// optional; enables once_per_content trigger frequency
	Decisions DecisionSource
}

// Result of one evaluation: the decision itself plus the side-effect
// descriptors for collaborating systems.
type Outcome struct {
	Decision ModerationDecision
	Effects  Effects
}

// Evaluates all matching active rules against the snapshot and resolves a
// single decision. All matching rules are scored (no short-circuit) so the
// decision carries full reasoning, but only the highest-priority triggered
// rule contributes actions.
func (eng *Engine) ProcessContent(ctx context.Context, snap *ContentSnapshot, triggerEvent string) (out *Outcome, err error) {
	start := time.Now()
	// similar to an HTTP server, recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("rule evaluation exception", "err", r, "contentID", snap.ContentID, "event", triggerEvent)
			evalErrorCount.WithLabelValues(triggerEvent).Inc()
			out = nil
			err = fmt.Errorf("rule evaluation panic: %v", r)
		}
		evalDuration.WithLabelValues(triggerEvent).Observe(time.Since(start).Seconds())
	}()
	evalCount.WithLabelValues(triggerEvent).Inc()

	rs, err := eng.Rules.ActiveRuleSet(ctx)
	if err != nil {
		evalErrorCount.WithLabelValues(triggerEvent).Inc()
		return nil, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}

	matching := rs.ForEvent(triggerEvent)
	logger := eng.Logger.With("contentID", snap.ContentID, "event", triggerEvent)
	logger.Debug("evaluating content", "matchingRules", len(matching))

	alreadyTriggered, err := eng.priorTriggered(ctx, matching, snap.ContentID)
	if err != nil {
		// non-fatal: worst case a once_per_content rule fires again
		logger.Warn("loading prior decision failed", "err", err)
	}

	eff := &Effects{}
	reasons := make([]DecisionReason, 0, len(matching))
	var winner *Rule
	var winnerScore float64
	var maxScore float64
	var triggered []*Rule

	for _, rule := range matching {
		score := eng.scoreRule(rule, snap)
		if score > maxScore {
			maxScore = score
		}
		fires := score >= rule.EffectiveMinScore()
		prior := rule.TriggerFrequency == FreqOncePerContent && alreadyTriggered[rule.ID]
		if fires && prior {
			logger.Debug("skipping once-per-content rule", "rule", rule.ID)
			fires = false
		}
		reasons = append(reasons, DecisionReason{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Score:    score,
			// a once-per-content rule stays recorded as triggered even when
			// its actions are suppressed, so the suppression survives when
			// this decision overwrites the prior one
			Triggered: fires || prior,
			Severity:  rule.Severity,
		})
		if fires {
			triggered = append(triggered, rule)
			// matching rules are pre-sorted, so first trigger wins
			if winner == nil {
				winner = rule
				winnerScore = score
			}
		}
	}

	decision := ModerationDecision{
		ContentID:   snap.ContentID,
		ContentType: snap.ContentType,
		AuthorID:    snap.Author.UserID,
		Reasons:     reasons,
		Status:      StatusAutoApplied,
		CreatedAt:   time.Now().UTC(),
	}

	if winner == nil {
		decision.Action = ActionApprove
		decision.Confidence = clamp01(1 - maxScore)
		logger.Debug("no rule triggered", "confidence", decision.Confidence)
		return &Outcome{Decision: decision, Effects: *eff}, nil
	}

	agreeing := 0
	for _, r := range triggered {
		if r.ID != winner.ID && r.Severity == winner.Severity {
			agreeing++
		}
	}

	decision.WinningRuleID = winner.ID
	decision.Action = primaryAction(winner)
	decision.Confidence = clamp01(winnerScore + agreementBoost*float64(agreeing))

	for _, a := range winner.Actions {
		eff.AddAction(a)
	}
	ruleID := strconv.FormatInt(winner.ID, 10)
	eff.Increment(CounterRuleTrigger, ruleID)
	eff.IncrementDistinct(CounterRuleContent, ruleID, snap.ContentID)
	ruleTriggerCount.WithLabelValues(string(decision.Action)).Inc()

	if err := eng.persistCounters(ctx, eff); err != nil {
		// trigger stats are best-effort; the decision itself stands
		logger.Warn("persisting trigger counters failed", "err", err)
	}

	logger.Info("rule triggered", "rule", winner.ID, "action", decision.Action, "confidence", decision.Confidence, "agreeing", agreeing)
	return &Outcome{Decision: decision, Effects: *eff}, nil
}

// Evaluates every condition of the rule and returns the weighted score:
// sum of satisfied weights over total weight. Conditions disabled by the
// regex circuit breaker still count toward total weight as unsatisfied.
func (eng *Engine) scoreRule(rule *Rule, snap *ContentSnapshot) float64 {
	total := rule.TotalWeight()
	if total <= 0 {
		// validated rule sets never reach this
		return 0
	}
	var satisfied float64
	for i, cond := range rule.Conditions {
		_, w := eng.Evaluator.Condition(rule.ID, i, cond, snap)
		satisfied += w
	}
	return satisfied / total
}

// Which rules already triggered for this content in a prior evaluation.
func (eng *Engine) priorTriggered(ctx context.Context, matching []*Rule, contentID string) (map[int64]bool, error) {
	needed := false
	for _, r := range matching {
		if r.TriggerFrequency == FreqOncePerContent {
			needed = true
			break
		}
	}
	if !needed || eng.Decisions == nil {
		return nil, nil
	}
	prior, err := eng.Decisions.GetDecision(ctx, contentID)
	if err != nil || prior == nil {
		return nil, err
	}
	out := make(map[int64]bool)
	for _, reason := range prior.Reasons {
		if reason.Triggered {
			out[reason.RuleID] = true
		}
	}
	return out, nil
}

func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) error {
	if eng.Counters == nil {
		return nil
	}
	for _, ref := range eff.CounterIncrements {
		if err := eng.Counters.Increment(ctx, ref.Name, ref.Val); err != nil {
			return err
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			return err
		}
	}
	return nil
}

// The action recorded on the decision when a rule wins. The rule's full
// action list still goes out as effect descriptors; the first one names the
// disposition.
func primaryAction(r *Rule) ActionType {
	if len(r.Actions) == 0 {
		return ActionApprove
	}
	return r.Actions[0].Type
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Convenience RuleSource over a static rule set, used by tests and by
// deployments that load rules from a file.
type StaticRules struct {
	Set *RuleSet
}

func (s *StaticRules) ActiveRuleSet(ctx context.Context) (*RuleSet, error) {
	if s.Set == nil {
		return nil, fmt.Errorf("no rule set configured")
	}
	return s.Set, nil
}
