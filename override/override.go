// Package override turns reliable community consensus into moderator-
// reviewable override recommendations, and applies the review outcomes.
package override

import (
	"context"
	"errors"
	"time"

	"github.com/sievemod/sieve/engine"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Proposed reversal of an automated decision. At most one pending
// recommendation exists per content item; transitions only leave pending,
// never re-enter it.
type Recommendation struct {
	ID                string            `json:"id"`
	ContentID         string            `json:"contentId"`
	OriginalAction    engine.ActionType `json:"originalAction"`
	RecommendedAction engine.ActionType `json:"recommendedAction"`
	Confidence        float64           `json:"confidence"`
	Status            Status            `json:"status"`
	ReviewedBy        string            `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time        `json:"reviewedAt,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

var (
	// reviewing a recommendation that already left pending
	ErrInvalidTransition = errors.New("recommendation is not pending")
	ErrNotFound          = errors.New("recommendation not found")
)

// Durable storage for recommendations.
type RecommendationStore interface {
	Create(ctx context.Context, rec Recommendation) error
	Update(ctx context.Context, rec Recommendation) error
	// Atomically moves a recommendation from pending to rec.Status. The
	// guard is part of the write: if the recommendation is no longer
	// pending, nothing changes and ErrInvalidTransition comes back, so
	// exactly one of two concurrent reviews can win.
	Close(ctx context.Context, rec Recommendation) error
	Get(ctx context.Context, id string) (*Recommendation, error)
	// (nil, nil) when no pending recommendation exists for the content
	GetPending(ctx context.Context, contentID string) (*Recommendation, error)
}

// Read/write access to recorded decisions, scoped to what the override
// pipeline needs.
type DecisionStore interface {
	GetDecision(ctx context.Context, contentID string) (*engine.ModerationDecision, error)
	SetDecisionStatus(ctx context.Context, contentID string, status engine.DecisionStatus) error
}

// Applies the recommended action through the moderator action gateway.
// Implementations must be idempotent: an override apply may be retried after
// a mid-apply crash.
type ActionApplier interface {
	ApplyOverride(ctx context.Context, rec Recommendation) error
}
