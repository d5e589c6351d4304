package engine

import (
	"fmt"
	"regexp"
	"sort"
)

// Comparison operator for a single rule condition. Validated when the rule
// set is loaded, not at evaluation time.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpMatches     Operator = "matches"
)

func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpMatches:
		return true
	}
	return false
}

// Moderation action kind. The engine only emits these as descriptors; the
// collaborating systems (content store, notification fan-out, reputation
// service) actually apply them.
type ActionType string

const (
	ActionApprove          ActionType = "approve"
	ActionFlag             ActionType = "flag"
	ActionBlock            ActionType = "block"
	ActionHide             ActionType = "hide"
	ActionQueueForReview   ActionType = "queue_for_review"
	ActionNotifyModerator  ActionType = "notify_moderator"
	ActionAdjustReputation ActionType = "adjust_reputation"
)

func (at ActionType) Valid() bool {
	switch at {
	case ActionApprove, ActionFlag, ActionBlock, ActionHide, ActionQueueForReview, ActionNotifyModerator, ActionAdjustReputation:
		return true
	}
	return false
}

// Restrictive actions are the ones a community consensus can recommend
// reversing to an approve.
func (at ActionType) Restrictive() bool {
	switch at {
	case ActionFlag, ActionBlock, ActionHide, ActionQueueForReview:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// How often a rule may trigger for the same content item across repeated
// evaluations (eg, content_posted followed by content_edited).
type TriggerFrequency string

const (
	FreqAlways         TriggerFrequency = "always"
	FreqOncePerContent TriggerFrequency = "once_per_content"
)

// Single weighted predicate evaluated against a content snapshot.
type Condition struct {
	Type     string   `json:"type"`
	Operator Operator `json:"operator"`
	Field    string   `json:"field"`
	Value    string   `json:"value"`
	Weight   float64  `json:"weight"`
}

// Side-effect descriptor attached to a rule.
type Action struct {
	Type       ActionType        `json:"type"`
	Target     string            `json:"target,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Admin-defined condition/action bundle for auto-moderating content.
type Rule struct {
	ID               int64
	Name             string
	Priority         int
	IsActive         bool
	TriggerEvent     string
	TriggerFrequency TriggerFrequency
	// minimum weightedScore for the rule to trigger; 0 means DefaultMinScore
	MinScore   float64
	Severity   Severity
	Conditions []Condition
	Actions    []Action
}

// Minimum weightedScore for a rule to trigger, when the rule does not set one.
const DefaultMinScore = 0.5

func (r *Rule) EffectiveMinScore() float64 {
	if r.MinScore <= 0 {
		return DefaultMinScore
	}
	return r.MinScore
}

func (r *Rule) TotalWeight() float64 {
	var sum float64
	for _, c := range r.Conditions {
		sum += c.Weight
	}
	return sum
}

// Checks that the rule definition is well-formed: known operators and action
// types, positive condition weights, regexes that compile, sane priority.
func (r *Rule) Validate() error {
	if r.Priority < 1 || r.Priority > 10 {
		return fmt.Errorf("rule %d: priority out of range: %d", r.ID, r.Priority)
	}
	if r.TriggerEvent == "" {
		return fmt.Errorf("rule %d: missing trigger event", r.ID)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %d: no conditions", r.ID)
	}
	if r.TotalWeight() <= 0 {
		return fmt.Errorf("rule %d: total condition weight must be positive", r.ID)
	}
	for i, c := range r.Conditions {
		if !c.Operator.Valid() {
			return fmt.Errorf("rule %d condition %d: unknown operator: %s", r.ID, i, c.Operator)
		}
		if c.Weight <= 0 {
			return fmt.Errorf("rule %d condition %d: weight must be positive", r.ID, i)
		}
		if c.Field == "" {
			return fmt.Errorf("rule %d condition %d: missing field path", r.ID, i)
		}
		if c.Operator == OpMatches {
			if _, err := regexp.Compile(c.Value); err != nil {
				return fmt.Errorf("rule %d condition %d: invalid regex: %w", r.ID, i, err)
			}
		}
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %d: no actions", r.ID)
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("rule %d action %d: unknown action type: %s", r.ID, i, a.Type)
		}
	}
	return nil
}

// Validated, evaluation-ordered collection of rules for one trigger event
// rule-set load. Immutable once constructed.
type RuleSet struct {
	rules []*Rule
}

// Builds a RuleSet from raw definitions. Malformed rules are deactivated and
// reported in the second return value rather than failing the whole load.
func NewRuleSet(defs []Rule) (*RuleSet, []error) {
	var malformed []error
	rules := make([]*Rule, 0, len(defs))
	for i := range defs {
		r := defs[i]
		if r.IsActive {
			if err := r.Validate(); err != nil {
				malformed = append(malformed, err)
				r.IsActive = false
			}
		}
		rules = append(rules, &r)
	}
	// priority descending, rule id ascending: deterministic evaluation order
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return &RuleSet{rules: rules}, malformed
}

// Active rules whose trigger event matches, in evaluation order.
func (rs *RuleSet) ForEvent(event string) []*Rule {
	var out []*Rule
	for _, r := range rs.rules {
		if r.IsActive && r.TriggerEvent == event {
			out = append(out, r)
		}
	}
	return out
}

func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
