package override

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
)

// Consensus score at or above which a reversal is recommended.
const DefaultThreshold = 0.65

// Recommender reacts to reliable consensus updates and maintains at most one
// pending recommendation per content item. It is invoked from the consensus
// calculator's reliable hook, while the per-content lock is held, so creates
// and updates for one content item never race.
type Recommender struct {
	Logger    *slog.Logger
	Recs      RecommendationStore
	Decisions DecisionStore
	Votes     consensus.VoteStore
	Threshold float64
	Policy    ActionPolicy
}

func NewRecommender(logger *slog.Logger, recs RecommendationStore, decisions DecisionStore, votes consensus.VoteStore) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{
		Logger:    logger,
		Recs:      recs,
		Decisions: decisions,
		Votes:     votes,
		Threshold: DefaultThreshold,
		Policy:    MajorityCategoryPolicy,
	}
}

// Evaluates a reliable consensus record. Returns the pending recommendation
// (created or refreshed), or nil when the record does not warrant one.
func (r *Recommender) HandleConsensus(ctx context.Context, rec consensus.Record) (*Recommendation, error) {
	if rec.Score < r.Threshold {
		return nil, nil
	}

	decision, err := r.Decisions.GetDecision(ctx, rec.ContentID)
	if err != nil {
		return nil, fmt.Errorf("loading decision: %w", err)
	}
	if decision == nil {
		r.Logger.Warn("consensus for unknown decision", "contentID", rec.ContentID)
		return nil, nil
	}
	if decision.Status != engine.StatusAutoApplied {
		// already overridden or queued for human review; nothing to recommend
		return nil, nil
	}

	existing, err := r.Recs.GetPending(ctx, rec.ContentID)
	if err != nil {
		return nil, fmt.Errorf("loading pending recommendation: %w", err)
	}
	now := time.Now().UTC()
	if existing != nil {
		// refresh confidence rather than duplicating
		existing.Confidence = rec.Score
		existing.UpdatedAt = now
		if err := r.Recs.Update(ctx, *existing); err != nil {
			return nil, fmt.Errorf("updating recommendation: %w", err)
		}
		return existing, nil
	}

	votes, err := r.Votes.ListByContent(ctx, rec.ContentID)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}

	fresh := Recommendation{
		ID:                uuid.New().String(),
		ContentID:         rec.ContentID,
		OriginalAction:    decision.Action,
		RecommendedAction: r.Policy(decision.Action, votes),
		Confidence:        rec.Score,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.Recs.Create(ctx, fresh); err != nil {
		return nil, fmt.Errorf("creating recommendation: %w", err)
	}
	recommendationCreatedCount.Inc()
	r.Logger.Info("override recommended", "contentID", rec.ContentID, "original", fresh.OriginalAction, "recommended", fresh.RecommendedAction, "confidence", fresh.Confidence)
	return &fresh, nil
}
