package engine

import (
	"time"
)

type DecisionStatus string

const (
	StatusAutoApplied   DecisionStatus = "auto_applied"
	StatusPendingReview DecisionStatus = "pending_review"
	StatusOverridden    DecisionStatus = "overridden"
)

// Per-rule evaluation outcome, collected for every matching rule (not just
// the winner) so the full reasoning survives into review.
type DecisionReason struct {
	RuleID    int64    `json:"ruleId"`
	RuleName  string   `json:"ruleName"`
	Score     float64  `json:"score"`
	Triggered bool     `json:"triggered"`
	Severity  Severity `json:"severity,omitempty"`
}

// Scored outcome of one rule-set evaluation over one content item. Immutable
// once recorded, except for the status transition to overridden.
type ModerationDecision struct {
	ContentID     string           `json:"contentId"`
	ContentType   string           `json:"contentType"`
	AuthorID      string           `json:"authorId,omitempty"`
	WinningRuleID int64            `json:"winningRuleId,omitempty"`
	Action        ActionType       `json:"action"`
	Confidence    float64          `json:"confidence"`
	Reasons       []DecisionReason `json:"contributingReasons,omitempty"`
	Status        DecisionStatus   `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
}
