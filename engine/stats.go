package engine

import (
	"context"
	"strconv"

	"github.com/sievemod/sieve/countstore"
)

// Counter namespaces for per-rule statistics. Stats are kept as append-only
// counters and reduced on read, rather than read-modify-write columns, so
// concurrent evaluations never lose increments.
const (
	CounterRuleTrigger    = "rule-trigger"
	CounterRuleContent    = "rule-content"
	CounterRuleAffirmed   = "rule-affirmed"
	CounterRuleOverridden = "rule-overridden"
)

type RuleStats struct {
	TimesTriggered int `json:"timesTriggered"`
	// review-gate outcomes for decisions this rule produced
	TimesAffirmed   int     `json:"timesAffirmed"`
	TimesOverridden int     `json:"timesOverridden"`
	SuccessRate     float64 `json:"successRate"`
}

// Reduces a rule's counters into its current stats. SuccessRate is the
// fraction of triggers that were not overturned by moderator review; an
// affirmed (override-rejected) trigger counts the same as an unchallenged
// one.
func GetRuleStats(ctx context.Context, counters countstore.CountStore, ruleID int64) (*RuleStats, error) {
	id := strconv.FormatInt(ruleID, 10)
	triggered, err := counters.GetCount(ctx, CounterRuleTrigger, id, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	affirmed, err := counters.GetCount(ctx, CounterRuleAffirmed, id, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	overridden, err := counters.GetCount(ctx, CounterRuleOverridden, id, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	stats := &RuleStats{
		TimesTriggered:  triggered,
		TimesAffirmed:   affirmed,
		TimesOverridden: overridden,
		SuccessRate:     1.0,
	}
	if triggered > 0 && overridden <= triggered {
		stats.SuccessRate = float64(triggered-overridden) / float64(triggered)
	}
	return stats, nil
}
