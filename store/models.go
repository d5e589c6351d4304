package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
	"github.com/sievemod/sieve/override"
)

// Rule definitions are stored with conditions and actions as JSON documents;
// they are parsed and validated into typed engine rules at load time, so
// evaluation never sees a loosely-typed row.
type Rule struct {
	ID               int64 `gorm:"primarykey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Name             string
	Priority         int
	IsActive         bool   `gorm:"index"`
	TriggerEvent     string `gorm:"index"`
	TriggerFrequency string
	MinScore         float64
	Severity         string
	ConditionsJSON   string
	ActionsJSON      string
}

func (r *Rule) ToEngine() (engine.Rule, error) {
	out := engine.Rule{
		ID:               r.ID,
		Name:             r.Name,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		TriggerEvent:     r.TriggerEvent,
		TriggerFrequency: engine.TriggerFrequency(r.TriggerFrequency),
		MinScore:         r.MinScore,
		Severity:         engine.Severity(r.Severity),
	}
	if err := json.Unmarshal([]byte(r.ConditionsJSON), &out.Conditions); err != nil {
		return out, fmt.Errorf("rule %d conditions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ActionsJSON), &out.Actions); err != nil {
		return out, fmt.Errorf("rule %d actions: %w", r.ID, err)
	}
	return out, nil
}

func RuleFromEngine(r engine.Rule) (Rule, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return Rule{}, err
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		ID:               r.ID,
		Name:             r.Name,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		TriggerEvent:     r.TriggerEvent,
		TriggerFrequency: string(r.TriggerFrequency),
		MinScore:         r.MinScore,
		Severity:         string(r.Severity),
		ConditionsJSON:   string(conditions),
		ActionsJSON:      string(actions),
	}, nil
}

// One decision row per content item; re-evaluation replaces the row, the
// status column is the only field mutated in place.
type Decision struct {
	ID            uint `gorm:"primarykey"`
	CreatedAt     time.Time
	ContentID     string `gorm:"uniqueIndex"`
	ContentType   string
	AuthorID      string `gorm:"index"`
	WinningRuleID int64
	Action        string
	Confidence    float64 `gorm:"index"`
	Status        string  `gorm:"index"`
	ReasonsJSON   string
	DecidedAt     time.Time
}

func (d *Decision) ToEngine() (engine.ModerationDecision, error) {
	out := engine.ModerationDecision{
		ContentID:     d.ContentID,
		ContentType:   d.ContentType,
		AuthorID:      d.AuthorID,
		WinningRuleID: d.WinningRuleID,
		Action:        engine.ActionType(d.Action),
		Confidence:    d.Confidence,
		Status:        engine.DecisionStatus(d.Status),
		CreatedAt:     d.DecidedAt,
	}
	if d.ReasonsJSON != "" {
		if err := json.Unmarshal([]byte(d.ReasonsJSON), &out.Reasons); err != nil {
			return out, fmt.Errorf("decision %s reasons: %w", d.ContentID, err)
		}
	}
	return out, nil
}

func DecisionFromEngine(d engine.ModerationDecision) (Decision, error) {
	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		ContentID:     d.ContentID,
		ContentType:   d.ContentType,
		AuthorID:      d.AuthorID,
		WinningRuleID: d.WinningRuleID,
		Action:        string(d.Action),
		Confidence:    d.Confidence,
		Status:        string(d.Status),
		ReasonsJSON:   string(reasons),
		DecidedAt:     d.CreatedAt,
	}, nil
}

// The composite unique index is what makes duplicate-vote prevention atomic:
// a race between two submissions resolves as a rejected conflict at the
// database, never a silent double-count.
type Vote struct {
	ID             uint `gorm:"primarykey"`
	CreatedAt      time.Time
	VoteID         string `gorm:"uniqueIndex"`
	ContentID      string `gorm:"index:idx_vote_content_voter,unique"`
	VoterID        string `gorm:"index:idx_vote_content_voter,unique"`
	TrustLevel     string
	Weight         float64
	WasAccurate    bool
	Severity       string
	CategoriesJSON string
	SubmittedAt    time.Time
}

func (v *Vote) ToConsensus() (consensus.Vote, error) {
	out := consensus.Vote{
		ID:         v.VoteID,
		ContentID:  v.ContentID,
		VoterID:    v.VoterID,
		TrustLevel: consensus.TrustLevel(v.TrustLevel),
		Weight:     v.Weight,
		Feedback: consensus.VoteFeedback{
			WasAccurate: v.WasAccurate,
			Severity:    v.Severity,
		},
		SubmittedAt: v.SubmittedAt,
	}
	if v.CategoriesJSON != "" {
		if err := json.Unmarshal([]byte(v.CategoriesJSON), &out.Feedback.Categories); err != nil {
			return out, fmt.Errorf("vote %s categories: %w", v.VoteID, err)
		}
	}
	return out, nil
}

func VoteFromConsensus(v consensus.Vote) (Vote, error) {
	categories, err := json.Marshal(v.Feedback.Categories)
	if err != nil {
		return Vote{}, err
	}
	return Vote{
		VoteID:         v.ID,
		ContentID:      v.ContentID,
		VoterID:        v.VoterID,
		TrustLevel:     string(v.TrustLevel),
		Weight:         v.Weight,
		WasAccurate:    v.Feedback.WasAccurate,
		Severity:       v.Feedback.Severity,
		CategoriesJSON: string(categories),
		SubmittedAt:    v.SubmittedAt,
	}, nil
}

type Consensus struct {
	ID             uint   `gorm:"primarykey"`
	ContentID      string `gorm:"uniqueIndex"`
	TotalWeight    float64
	AgreeWeight    float64
	DisagreeWeight float64
	VoterCount     int
	Score          float64
	ComputedAt     time.Time
}

func (c *Consensus) ToConsensus() consensus.Record {
	return consensus.Record{
		ContentID:      c.ContentID,
		TotalWeight:    c.TotalWeight,
		AgreeWeight:    c.AgreeWeight,
		DisagreeWeight: c.DisagreeWeight,
		VoterCount:     c.VoterCount,
		Score:          c.Score,
		ComputedAt:     c.ComputedAt,
	}
}

type OverrideRecommendation struct {
	ID                uint `gorm:"primarykey"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	RecID             string `gorm:"uniqueIndex"`
	ContentID         string `gorm:"index"`
	OriginalAction    string
	RecommendedAction string
	Confidence        float64
	Status            string `gorm:"index"`
	ReviewedBy        string
	ReviewedAt        *time.Time
	Notes             string
}

func (o *OverrideRecommendation) ToOverride() override.Recommendation {
	return override.Recommendation{
		ID:                o.RecID,
		ContentID:         o.ContentID,
		OriginalAction:    engine.ActionType(o.OriginalAction),
		RecommendedAction: engine.ActionType(o.RecommendedAction),
		Confidence:        o.Confidence,
		Status:            override.Status(o.Status),
		ReviewedBy:        o.ReviewedBy,
		ReviewedAt:        o.ReviewedAt,
		Notes:             o.Notes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}
