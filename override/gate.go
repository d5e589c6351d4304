package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/countstore"
	"github.com/sievemod/sieve/engine"
)

// Bonus points for voters whose disagreement an approved override vindicated.
const AgreeingVoterBonus = 5

// Awards reputation points for voting outcomes. The core only computes
// amount and reason; the points service owns the ledger.
type PointsAwarder interface {
	Award(ctx context.Context, userID string, amount int, reason, idempotencyKey string) error
}

// ReviewGate is the terminal human-approval state machine. A recommendation
// transitions out of pending exactly once; re-review of a closed one fails
// with a conflict and changes nothing.
type ReviewGate struct {
	Logger    *slog.Logger
	Recs      RecommendationStore
	Decisions DecisionStore
	Votes     consensus.VoteStore
	Counters  countstore.CountStore
	Applier   ActionApplier
	Points    PointsAwarder
}

// Applies a moderator's verdict on a recommendation. The actor identity is
// already verified upstream.
func (g *ReviewGate) Review(ctx context.Context, overrideID, reviewer string, approved bool, notes string) (*Recommendation, error) {
	rec, err := g.Recs.Get(ctx, overrideID)
	if err != nil {
		return nil, fmt.Errorf("loading recommendation: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, overrideID, rec.Status)
	}

	now := time.Now().UTC()
	rec.ReviewedBy = reviewer
	rec.ReviewedAt = &now
	rec.Notes = notes
	rec.UpdatedAt = now
	if approved {
		rec.Status = StatusApproved
	} else {
		rec.Status = StatusRejected
	}

	// claim the transition before any side effects run; of two racing
	// reviews only one passes the pending guard
	if err := g.Recs.Close(ctx, *rec); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s already reviewed", ErrInvalidTransition, overrideID)
		}
		return nil, fmt.Errorf("recording review: %w", err)
	}

	if approved {
		if err := g.applyApproved(ctx, rec); err != nil {
			return nil, err
		}
	} else {
		if err := g.applyRejected(ctx, rec); err != nil {
			return nil, err
		}
	}
	reviewCount.WithLabelValues(string(rec.Status)).Inc()
	g.Logger.Info("override reviewed", "overrideID", rec.ID, "contentID", rec.ContentID, "status", rec.Status, "reviewer", reviewer)
	return rec, nil
}

// Approved: the recommended action goes out through the (idempotent) action
// gateway, the original decision flips to overridden, and voters whose
// disagreement was vindicated receive a bonus. Every step is safe to retry.
func (g *ReviewGate) applyApproved(ctx context.Context, rec *Recommendation) error {
	if g.Applier != nil {
		if err := g.Applier.ApplyOverride(ctx, *rec); err != nil {
			return fmt.Errorf("applying override action: %w", err)
		}
	}
	if err := g.Decisions.SetDecisionStatus(ctx, rec.ContentID, engine.StatusOverridden); err != nil {
		return fmt.Errorf("marking decision overridden: %w", err)
	}

	if g.Counters != nil {
		decision, err := g.Decisions.GetDecision(ctx, rec.ContentID)
		if err == nil && decision != nil && decision.WinningRuleID != 0 {
			id := strconv.FormatInt(decision.WinningRuleID, 10)
			if err := g.Counters.Increment(ctx, engine.CounterRuleOverridden, id); err != nil {
				g.Logger.Warn("recording rule override failed", "err", err, "rule", id)
			}
		}
	}

	if g.Points != nil && g.Votes != nil {
		votes, err := g.Votes.ListByContent(ctx, rec.ContentID)
		if err != nil {
			g.Logger.Warn("listing votes for bonus awards failed", "err", err)
			return nil
		}
		for _, v := range votes {
			if v.Feedback.WasAccurate {
				continue
			}
			// keyed on recommendation and voter so retries never double-pay
			key := fmt.Sprintf("override-bonus/%s/%s", rec.ID, v.VoterID)
			if err := g.Points.Award(ctx, v.VoterID, AgreeingVoterBonus, "override_vindicated", key); err != nil {
				g.Logger.Warn("bonus award failed", "err", err, "voter", v.VoterID)
			}
		}
	}
	return nil
}

// Rejected: the decision stays auto_applied and the originating rule gets a
// one-time affirmation.
func (g *ReviewGate) applyRejected(ctx context.Context, rec *Recommendation) error {
	if g.Counters == nil {
		return nil
	}
	decision, err := g.Decisions.GetDecision(ctx, rec.ContentID)
	if err != nil {
		return fmt.Errorf("loading decision: %w", err)
	}
	if decision == nil || decision.WinningRuleID == 0 {
		return nil
	}
	id := strconv.FormatInt(decision.WinningRuleID, 10)
	if err := g.Counters.Increment(ctx, engine.CounterRuleAffirmed, id); err != nil {
		g.Logger.Warn("recording rule affirmation failed", "err", err, "rule", id)
	}
	return nil
}
