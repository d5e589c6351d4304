// Package feedback selects ambiguous past decisions to present to community
// voters.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
)

// Defaults for the ambiguity band and vote cap.
const (
	DefaultMinConfidence = 0.4
	DefaultMaxConfidence = 0.85
	DefaultMaxVotes      = 15
	DefaultHalfLife      = 24 * time.Hour
)

// Decisions eligible for community feedback: auto-applied, confidence inside
// the ambiguity band (exclusive). Implementations push the band into the
// query; the selector re-checks and applies the per-user exclusions.
type DecisionSource interface {
	ListAmbiguous(ctx context.Context, minConfidence, maxConfidence float64) ([]engine.ModerationDecision, error)
}

// An ambiguous decision surfaced to a voter, with its presentation priority.
type Opportunity struct {
	Decision  engine.ModerationDecision `json:"decision"`
	VoteCount int                       `json:"voteCount"`
	Priority  float64                   `json:"priority"`
}

// Selector ranks ambiguous decisions for presentation. Low-confidence items
// surface first; recency decays exponentially so stale ambiguous items fade
// out instead of pinning the queue.
type Selector struct {
	Logger    *slog.Logger
	Decisions DecisionSource
	Votes     consensus.VoteStore

	MinConfidence float64
	MaxConfidence float64
	MaxVotes      int
	HalfLife      time.Duration

	// test hook
	Now func() time.Time
}

func NewSelector(logger *slog.Logger, decisions DecisionSource, votes consensus.VoteStore) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		Logger:        logger,
		Decisions:     decisions,
		Votes:         votes,
		MinConfidence: DefaultMinConfidence,
		MaxConfidence: DefaultMaxConfidence,
		MaxVotes:      DefaultMaxVotes,
		HalfLife:      DefaultHalfLife,
		Now:           time.Now,
	}
}

// Top-k feedback opportunities for the requesting user, excluding content
// they authored or already voted on.
func (s *Selector) Select(ctx context.Context, userID string, k int) ([]Opportunity, error) {
	if k <= 0 {
		return nil, nil
	}
	candidates, err := s.Decisions.ListAmbiguous(ctx, s.MinConfidence, s.MaxConfidence)
	if err != nil {
		return nil, fmt.Errorf("listing ambiguous decisions: %w", err)
	}

	now := s.Now()
	var out []Opportunity
	for _, d := range candidates {
		if d.Status != engine.StatusAutoApplied {
			continue
		}
		if d.Confidence <= s.MinConfidence || d.Confidence >= s.MaxConfidence {
			continue
		}
		if d.AuthorID != "" && d.AuthorID == userID {
			continue
		}
		voted, err := s.Votes.HasVoted(ctx, d.ContentID, userID)
		if err != nil {
			return nil, fmt.Errorf("checking prior vote: %w", err)
		}
		if voted {
			continue
		}
		count, err := s.Votes.CountByContent(ctx, d.ContentID)
		if err != nil {
			return nil, fmt.Errorf("counting votes: %w", err)
		}
		if count >= s.MaxVotes {
			continue
		}
		out = append(out, Opportunity{
			Decision:  d,
			VoteCount: count,
			Priority:  s.priority(d, now),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	if len(out) > k {
		out = out[:k]
	}
	selectedCount.Add(float64(len(out)))
	return out, nil
}

// priority = (1 - confidence) x recencyWeight, where recency halves every
// HalfLife.
func (s *Selector) priority(d engine.ModerationDecision, now time.Time) float64 {
	age := now.Sub(d.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-age.Hours() / s.HalfLife.Hours())
	return (1 - d.Confidence) * recency
}
