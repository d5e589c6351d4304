package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Defaults for the reliability gate: below these the override pipeline takes
// no action on the record.
const (
	DefaultMinVoters = 5
	DefaultMinWeight = 8.0
)

// Calculator turns incoming votes into consensus records. Recomputation for
// a given contentID is serialized behind a per-content mutex so concurrent
// votes never produce lost updates; votes for different content proceed in
// parallel.
type Calculator struct {
	Logger  *slog.Logger
	Votes   VoteStore
	Records RecordStore
	Weights WeightTable

	MinVoters int
	MinWeight float64

	// invoked after a recompute that crosses the reliability gate, while the
	// per-content lock is still held
	OnReliable func(ctx context.Context, rec Record) error

	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewCalculator(logger *slog.Logger, votes VoteStore, records RecordStore) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		Logger:    logger,
		Votes:     votes,
		Records:   records,
		Weights:   DefaultWeights(),
		MinVoters: DefaultMinVoters,
		MinWeight: DefaultMinWeight,
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Whether the record has enough independent signal for the override pipeline
// to act on.
func (c *Calculator) Reliable(rec *Record) bool {
	return rec.VoterCount >= c.MinVoters && rec.TotalWeight >= c.MinWeight
}

// Records a vote and recomputes the consensus for its content item. The vote
// weight is assigned here from the trust table; callers supply only the trust
// level. A duplicate vote returns ErrDuplicateVote and does not change the
// record.
func (c *Calculator) SubmitVote(ctx context.Context, vote Vote) (*Record, error) {
	if vote.ContentID == "" || vote.VoterID == "" {
		return nil, fmt.Errorf("vote missing content or voter id")
	}
	if vote.ID == "" {
		vote.ID = uuid.New().String()
	}
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = time.Now().UTC()
	}
	vote.Weight = c.Weights.Weight(vote.TrustLevel)

	mu, _ := c.locks.LoadOrCompute(vote.ContentID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	defer mu.Unlock()

	if err := c.Votes.Add(ctx, vote); err != nil {
		return nil, err
	}
	voteSubmittedCount.WithLabelValues(string(vote.TrustLevel)).Inc()

	rec, err := c.recompute(ctx, vote.ContentID)
	if err != nil {
		return nil, err
	}

	if c.Reliable(rec) && c.OnReliable != nil {
		if err := c.OnReliable(ctx, *rec); err != nil {
			// the vote and record are already durable; the override hook can
			// re-run on the next vote
			c.Logger.Warn("reliable-consensus hook failed", "err", err, "contentID", vote.ContentID)
		}
	}
	return rec, nil
}

// Rebuilds the record from the full vote set under the per-content lock.
func (c *Calculator) recompute(ctx context.Context, contentID string) (*Record, error) {
	votes, err := c.Votes.ListByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}
	rec := Compute(contentID, votes)
	if err := c.Records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing consensus record: %w", err)
	}
	recomputeCount.Inc()
	c.Logger.Debug("consensus recomputed", "contentID", contentID, "voters", rec.VoterCount, "score", rec.Score)
	return &rec, nil
}

// Pure aggregation of a vote set, independent of vote arrival order. The
// consensus score is the weighted fraction of voters disagreeing with the
// original decision.
func Compute(contentID string, votes []Vote) Record {
	rec := Record{
		ContentID:  contentID,
		VoterCount: len(votes),
		ComputedAt: time.Now().UTC(),
	}
	for _, v := range votes {
		rec.TotalWeight += v.Weight
		if v.Feedback.WasAccurate {
			rec.AgreeWeight += v.Weight
		} else {
			rec.DisagreeWeight += v.Weight
		}
	}
	if denom := rec.AgreeWeight + rec.DisagreeWeight; denom > 0 {
		rec.Score = rec.DisagreeWeight / denom
	}
	return rec
}
